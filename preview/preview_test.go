// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package preview_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/preview"
	"github.com/OpenPSG/eegprep/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSample(t *testing.T) *tensor.Mapped {
	t.Helper()

	x := tensor.New(3, 2, 100)
	for i := range x.Data {
		x.Data[i] = math.Sin(float64(i) / 5)
	}
	path := filepath.Join(t.TempDir(), "MM05.eeg")
	require.NoError(t, tensor.Save(path, &tensor.Artifact{
		Tensor:      x,
		Labels:      []string{"pat", "pat", "pat"},
		Identifiers: []string{"original", "jitter__sigma_5.0e+00__target_pat", "jitter__sigma_6.0e+00__target_pat"},
		Channels:    []string{"T7", "C5"},
	}))

	m, err := tensor.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSavePNG(t *testing.T) {
	ds := openSample(t)
	path := filepath.Join(t.TempDir(), "plots", "MM05.png")

	require.NoError(t, preview.Save(path, ds, preview.Request{Channel: 1, Trials: []int{0, 2}, Samples: 5}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestSaveSVG(t *testing.T) {
	ds := openSample(t)
	path := filepath.Join(t.TempDir(), "MM05.svg")

	require.NoError(t, preview.Save(path, ds, preview.Request{Channel: 0, Trials: []int{1}, Title: "Jitter"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestSaveInvalid(t *testing.T) {
	ds := openSample(t)
	path := filepath.Join(t.TempDir(), "x.png")

	assert.ErrorIs(t, preview.Save(path, ds, preview.Request{Channel: 2, Trials: []int{0}}), eegprep.ErrInvalidParameter)
	assert.ErrorIs(t, preview.Save(path, ds, preview.Request{Channel: 0}), eegprep.ErrInvalidParameter)
	assert.ErrorIs(t, preview.Save(path, ds, preview.Request{Channel: 0, Trials: []int{3}}), eegprep.ErrInvalidParameter)
}
