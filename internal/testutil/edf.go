// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package testutil builds recordings and artifacts for tests.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/OpenPSG/eegprep/edf"
	"github.com/stretchr/testify/require"
)

// WriteEDF writes the given channels to an EDF file with one second data
// records. Every series must hold a whole number of seconds at rate Hz.
// Values are stored with 0.1 uV resolution.
func WriteEDF(t testing.TB, path string, rate int, channels []string, series [][]float64) {
	t.Helper()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X",
		RecordingID:        "test",
		StartTime:          time.Date(2015, 3, 14, 9, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
	}
	for _, name := range channels {
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:             name,
			PhysicalDimension: "uV",
			PhysicalMin:       -3276.8,
			PhysicalMax:       3276.7,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			SamplesPerRecord:  rate,
		})
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()

	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)
	require.NoError(t, ew.WriteSignals(series))
	require.NoError(t, ew.Close())
}

// Ramp returns n samples counting up from start in steps of step.
func Ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
