// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package epochs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAction(t *testing.T) {
	a, err := epochs.ParseAction("thinking_inds")
	require.NoError(t, err)
	assert.Equal(t, epochs.Thinking, a)

	a, err = epochs.ParseAction("clearing_inds")
	require.NoError(t, err)
	assert.Equal(t, epochs.Clearing, a)
	assert.Equal(t, "clearing_inds", a.String())

	_, err = epochs.ParseAction("unknown_inds")
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)
}

func TestActionText(t *testing.T) {
	var cfg struct {
		Action epochs.Action `yaml:"action"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("action: clearing_inds\n"), &cfg))
	assert.Equal(t, epochs.Clearing, cfg.Action)

	err := yaml.Unmarshal([]byte("action: unknown_inds\n"), &cfg)
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)

	_, err = epochs.Action(7).MarshalText()
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epoch_inds.json")
	thinking := epochs.Table{{Start: 10000, End: 14800}, {Start: 20000, End: 24300}}
	clearing := epochs.Table{{Start: 14800, End: 19800}, {Start: 24300, End: 29300}}
	require.NoError(t, epochs.SaveTable(path, thinking, clearing))

	got, err := epochs.LoadTable(path, epochs.Thinking)
	require.NoError(t, err)
	if diff := cmp.Diff(thinking, got); diff != "" {
		t.Errorf("thinking table mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4800, got[0].Len())

	got, err = epochs.LoadTable(path, epochs.Clearing)
	require.NoError(t, err)
	if diff := cmp.Diff(clearing, got); diff != "" {
		t.Errorf("clearing table mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTableErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := epochs.LoadTable(filepath.Join(dir, "missing.json"), epochs.Thinking)
	assert.ErrorIs(t, err, eegprep.ErrNotFound)

	// The action is rejected before the file is looked at.
	_, err = epochs.LoadTable(filepath.Join(dir, "missing.json"), epochs.Action(0))
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"thinking_inds": [[500, 100]]}`), 0o644))
	_, err = epochs.LoadTable(bad, epochs.Thinking)
	assert.ErrorIs(t, err, eegprep.ErrInvalidParameter)

	garbled := filepath.Join(dir, "garbled.json")
	require.NoError(t, os.WriteFile(garbled, []byte(`{`), 0o644))
	_, err = epochs.LoadTable(garbled, epochs.Thinking)
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	labels := []string{"/iy/", "/uw/", "pat", "pot", "knew", "gnaw"}
	require.NoError(t, epochs.SaveLabels(path, labels))

	got, err := epochs.LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, labels, got)

	_, err = epochs.LoadLabels(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, eegprep.ErrNotFound)
}
