// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package export_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/export"
	"github.com/OpenPSG/eegprep/tensor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openDecimated(t *testing.T, channels []string, identifiers []string) *tensor.Mapped {
	t.Helper()

	x := tensor.New(2, 2, 3)
	for i := range x.Data {
		x.Data[i] = float64(i) + 0.5
	}
	path := filepath.Join(t.TempDir(), "MM05_wavelet_6.eeg")
	require.NoError(t, tensor.Save(path, &tensor.Artifact{
		Tensor:      x,
		Labels:      []string{"pat", "gnaw"},
		Identifiers: identifiers,
		Channels:    channels,
		SampleRate:  500,
	}))

	m, err := tensor.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestExport(t *testing.T) {
	for _, codec := range []string{"", "snappy", "zstd", "gzip"} {
		t.Run(codec, func(t *testing.T) {
			ds := openDecimated(t, []string{"T7", "C5"}, []string{"original", "jitter__sigma_1.0e+00__target_gnaw"})
			path := filepath.Join(t.TempDir(), "export", "MM05.parquet")

			e := export.New(export.WithCompression(codec), export.WithLogger(zaptest.NewLogger(t)))
			n, err := e.Export(context.Background(), path, "MM05", ds)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			rows, err := export.ReadRows(path)
			require.NoError(t, err)

			want := []export.Row{
				{Subject: "MM05", Trial: 0, Channel: "T7", Label: "pat", Identifier: "original", Values: []float64{0.5, 1.5, 2.5}},
				{Subject: "MM05", Trial: 0, Channel: "C5", Label: "pat", Identifier: "original", Values: []float64{3.5, 4.5, 5.5}},
				{Subject: "MM05", Trial: 1, Channel: "T7", Label: "gnaw", Identifier: "jitter__sigma_1.0e+00__target_gnaw", Values: []float64{6.5, 7.5, 8.5}},
				{Subject: "MM05", Trial: 1, Channel: "C5", Label: "gnaw", Identifier: "jitter__sigma_1.0e+00__target_gnaw", Values: []float64{9.5, 10.5, 11.5}},
			}
			if diff := cmp.Diff(want, rows); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExportUnnamedChannels(t *testing.T) {
	ds := openDecimated(t, nil, nil)
	path := filepath.Join(t.TempDir(), "MM05.parquet")

	_, err := export.New().Export(context.Background(), path, "MM05", ds)
	require.NoError(t, err)

	rows, err := export.ReadRows(path)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "0", rows[0].Channel)
	assert.Equal(t, "1", rows[1].Channel)
	assert.Equal(t, "", rows[0].Identifier)
}

func TestExportUnknownCodec(t *testing.T) {
	ds := openDecimated(t, nil, nil)
	dir := t.TempDir()

	_, err := export.New(export.WithCompression("lzma")).Export(context.Background(), filepath.Join(dir, "x.parquet"), "MM05", ds)
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportCancelledLeavesNothing(t *testing.T) {
	ds := openDecimated(t, nil, nil)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := export.New().Export(ctx, filepath.Join(dir, "x.parquet"), "MM05", ds)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadRowsMissing(t *testing.T) {
	_, err := export.ReadRows(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.ErrorIs(t, err, eegprep.ErrNotFound)
}
