// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package recording loads continuous multi-channel recordings.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/edf"
	"go.uber.org/zap"
)

// Recording is a continuous recording: one sample series per channel, all
// sampled at the same rate.
type Recording struct {
	Channels   []string    // Channel names, in order
	Series     [][]float64 // Samples, indexed like Channels
	SampleRate float64     // Samples per second
}

// Len returns the number of samples in the shortest channel.
func (r *Recording) Len() int {
	if len(r.Series) == 0 {
		return 0
	}
	n := len(r.Series[0])
	for _, s := range r.Series[1:] {
		n = min(n, len(s))
	}
	return n
}

// Channel returns the series of the named channel.
func (r *Recording) Channel(name string) ([]float64, bool) {
	i := slices.Index(r.Channels, name)
	if i < 0 {
		return nil, false
	}
	return r.Series[i], true
}

// ChannelMap returns the series keyed by channel name.
func (r *Recording) ChannelMap() map[string][]float64 {
	m := make(map[string][]float64, len(r.Channels))
	for i, name := range r.Channels {
		m[name] = r.Series[i]
	}
	return m
}

// Select drops the ignored channels and then, if keep is non-empty, keeps only
// the listed channels in the order given. Unknown names in keep are an error.
func (r *Recording) Select(ignore, keep []string) (*Recording, error) {
	out := &Recording{SampleRate: r.SampleRate}
	for i, name := range r.Channels {
		if slices.Contains(ignore, name) {
			continue
		}
		out.Channels = append(out.Channels, name)
		out.Series = append(out.Series, r.Series[i])
	}

	if len(keep) == 0 {
		return out, nil
	}

	picked := &Recording{SampleRate: r.SampleRate}
	for _, name := range keep {
		series, ok := out.Channel(name)
		if !ok {
			return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "keep_channels", "channel %q not in recording", name)
		}
		picked.Channels = append(picked.Channels, name)
		picked.Series = append(picked.Series, series)
	}
	return picked, nil
}

// Reader loads the recording stored in a subject directory.
type Reader interface {
	Read(dir string) (*Recording, error)
}

// EDFReader reads the first *.edf file of a subject directory.
type EDFReader struct {
	Ignore []string // Channels to drop
	Keep   []string // Channels to keep, all when empty
	Logger *zap.Logger
}

// Read implements Reader.
func (r *EDFReader) Read(dir string) (*Recording, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.edf"))
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, eegprep.Errorf(eegprep.ErrNotFound, filepath.Join(dir, "*.edf"), "no recording")
	}
	slices.Sort(matches)
	path := matches[0]

	logger.Info("Loading recording", zap.String("path", path))

	rec, err := ReadEDF(path)
	if err != nil {
		return nil, err
	}

	return rec.Select(r.Ignore, r.Keep)
}

// ReadEDF decodes every data signal of an EDF file. Annotation signals are
// skipped. All data signals must share one sample rate.
func ReadEDF(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eegprep.Classify(path, err)
	}
	defer f.Close()

	er, err := edf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}

	signals, err := er.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	hdr := er.Header()
	rec := &Recording{}
	for i, sig := range hdr.Signals {
		if sig.IsAnnotation() {
			continue
		}

		rate := sig.SampleRate(hdr.DataRecordDuration)
		if rec.SampleRate == 0 {
			rec.SampleRate = rate
		} else if rate != rec.SampleRate {
			return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, path,
				"signal %q sampled at %g Hz, expected %g Hz", sig.Label, rate, rec.SampleRate)
		}

		rec.Channels = append(rec.Channels, sig.Label)
		rec.Series = append(rec.Series, signals[i])
	}

	return rec, nil
}
