// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package segment cuts a continuous recording into fixed-length trial windows.
package segment

import (
	"context"
	"fmt"
	"runtime"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/OpenPSG/eegprep/tensor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FullEpoch is the largest supported window, in samples. Requesting it takes
// each trial's end from the index table instead of start+duration.
const FullEpoch = 5000

// Window is the resolved sample range of one trial.
type Window struct {
	Start int
	End   int
}

// Engine segments recordings.
type Engine struct {
	logger  *zap.Logger
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWorkers bounds the number of trials processed concurrently.
// Values below one use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

// ValidateDuration checks that 0 < duration <= FullEpoch.
func ValidateDuration(duration int) error {
	if duration <= 0 || duration > FullEpoch {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "duration", "%d samples, must be in (0, %d]", duration, FullEpoch)
	}
	return nil
}

// Offset is the alignment correction added to every marker: half a second of samples.
func Offset(sampleRate float64) int {
	return int(sampleRate / 2)
}

// Windows resolves the sample range of every trial. Starts are shifted by
// Offset(sampleRate). With duration == FullEpoch the end is the table's own
// end, shifted by the same amount; otherwise it is start+duration.
func Windows(table epochs.Table, sampleRate float64, duration int) ([]Window, error) {
	if err := ValidateDuration(duration); err != nil {
		return nil, err
	}

	offset := Offset(sampleRate)
	windows := make([]Window, len(table))
	for i, iv := range table {
		w := Window{Start: iv.Start + offset}
		if duration == FullEpoch {
			w.End = iv.End + offset
		} else {
			w.End = w.Start + duration
		}
		if w.End < w.Start {
			return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "epochs",
				"trial %d ends at %d before it starts at %d", i, w.End, w.Start)
		}
		if w.End-w.Start > duration {
			return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "duration",
				"trial %d spans %d samples, more than the %d sample capacity", i, w.End-w.Start, duration)
		}
		windows[i] = w
	}
	return windows, nil
}

// Segment copies every trial window of rec into a (trials, channels, duration)
// tensor. Windows shorter than duration are zero-padded on the right. Any
// window that falls outside the recording fails the whole call.
func (e *Engine) Segment(ctx context.Context, rec *recording.Recording, table epochs.Table, labels []string, duration int) (*tensor.Artifact, error) {
	if len(table) != len(labels) {
		return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "labels", "%d labels for %d trials", len(labels), len(table))
	}

	windows, err := Windows(table, rec.SampleRate, duration)
	if err != nil {
		return nil, err
	}

	length := rec.Len()
	for i, w := range windows {
		if w.Start < 0 || w.End > length {
			return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "epochs",
				"trial %d window [%d, %d) outside recording of %d samples", i, w.Start, w.End, length)
		}
	}

	e.logger.Info("Making dataset",
		zap.Int("trials", len(windows)),
		zap.Int("channels", len(rec.Channels)),
		zap.Int("samples", duration),
		zap.Int("offset", Offset(rec.SampleRate)))

	out := tensor.New(len(windows), len(rec.Channels), duration)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, w := range windows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for ch, series := range rec.Series {
				copy(out.Series(i, ch), series[w.Start:w.End])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("error segmenting trials: %w", err)
	}

	return &tensor.Artifact{
		Tensor:     out,
		Labels:     append([]string(nil), labels...),
		Channels:   append([]string(nil), rec.Channels...),
		SampleRate: rec.SampleRate,
	}, nil
}
