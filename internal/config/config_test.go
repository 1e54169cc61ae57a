// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/augment"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eegprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.GetScale())
	assert.Equal(t, epochs.Thinking, cfg.Action)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
root: /data/karaone
subjects: [MM05, MM08]
action: clearing_inds
duration: 5000
level: 4
wavelet: db2
scale: false
quantile_range: [10, 90]
ignore_channels: [EKG, EMG, Trigger, STI 014]
workers: 4
log_level: debug
augment:
  method: scaling
  factor: 3
  low_sigma: 0.1
  high_sigma: 0.3
  seed: 7
export_compression: zstd
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/karaone", cfg.Root)
	assert.Equal(t, []string{"MM05", "MM08"}, cfg.Subjects)
	assert.Equal(t, epochs.Clearing, cfg.Action)
	assert.Equal(t, 5000, cfg.Duration)
	assert.Equal(t, 4, cfg.Level)
	assert.Equal(t, "db2", cfg.Wavelet)
	assert.False(t, cfg.GetScale())
	assert.Equal(t, [2]float64{10, 90}, cfg.QuantileRange)
	assert.Equal(t, []string{"EKG", "EMG", "Trigger", "STI 014"}, cfg.IgnoreChannels)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "zstd", cfg.ExportCompression)

	// Keys left out keep their defaults.
	assert.Equal(t, "RawDataExtracted", cfg.RawDir)
	assert.Equal(t, "catalog.db", cfg.Catalog)

	require.NotNil(t, cfg.Augment)
	want := augment.Params{Method: augment.Scaling, Factor: 3, LowSigma: 0.1, HighSigma: 0.3, Seed: 7}
	if diff := cmp.Diff(want, cfg.Augment.Params()); diff != "" {
		t.Errorf("augment mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		body string
		kind error
	}{
		"unknown action":   {"action: sleeping_inds\n", eegprep.ErrInvalidKey},
		"duration too big": {"duration: 5001\n", eegprep.ErrInvalidParameter},
		"zero duration":    {"duration: 0\n", eegprep.ErrInvalidParameter},
		"level too deep":   {"duration: 100\nlevel: 7\n", eegprep.ErrInvalidParameter},
		"zero level":       {"level: 0\n", eegprep.ErrInvalidParameter},
		"unknown wavelet":  {"wavelet: sym5\n", eegprep.ErrInvalidKey},
		"inverted range":   {"quantile_range: [75, 25]\n", eegprep.ErrInvalidParameter},
		"negative workers": {"workers: -1\n", eegprep.ErrInvalidParameter},
		"unknown level":    {"log_level: loud\n", eegprep.ErrInvalidKey},
		"unknown codec":    {"export_compression: lzma\n", eegprep.ErrInvalidKey},
		"augment factor":   {"augment:\n  method: jitter\n  factor: 0\n", eegprep.ErrInvalidParameter},
		"augment method":   {"augment:\n  factor: 2\n", eegprep.ErrInvalidKey},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body))
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := config.Load(writeConfig(t, "durration: 4400\n"))
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, eegprep.ErrNotFound)
}

func TestSubject(t *testing.T) {
	cfg := config.Default()
	cfg.Root = "/data"
	cfg.ExportDir = "/exports"

	got := cfg.Subject("MM05")
	want := config.SubjectPaths{
		Subject:   "MM05",
		Dir:       "/data/RawDataExtracted/MM05",
		Index:     "/data/RawDataExtracted/MM05/epoch_inds.json",
		Prompts:   "/data/RawDataExtracted/MM05/all_features_simple.json",
		Segmented: "/data/SplittedData/MM05.eeg",
		Augmented: "/data/AugmentedData/MM05.eeg",
		Decimated: "/data/WaveletData/MM05_wavelet_6.eeg",
		Export:    "/exports/MM05_wavelet_6.parquet",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "/data/catalog.db", cfg.CatalogPath())
	cfg.Catalog = ""
	assert.Equal(t, "", cfg.CatalogPath())
}
