// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package multires re-expresses segmented trials as the magnitude of their
// coarsest wavelet detail band.
package multires

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/tensor"
	"github.com/OpenPSG/eegprep/wavelet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Decomposer runs a multi-level dyadic decomposition along the rows of x,
// one signal per column.
type Decomposer interface {
	Forward(x mat.Matrix, levels int) (*wavelet.Pyramid, error)
}

// Transformer applies the decomposition to every trial of a tensor.
type Transformer struct {
	decomposer Decomposer
	levels     int
	scaler     *RobustScaler
	workers    int
	logger     *zap.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithDecomposer replaces the default Haar transform.
func WithDecomposer(d Decomposer) Option {
	return func(t *Transformer) { t.decomposer = d }
}

// WithScaler sets the normalizer run after decomposition. Nil disables scaling.
func WithScaler(s *RobustScaler) Option {
	return func(t *Transformer) { t.scaler = s }
}

// WithWorkers bounds the number of trials decomposed concurrently.
// Values below one use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(t *Transformer) { t.workers = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transformer) { t.logger = logger }
}

// New creates a Transformer for the given depth. Scaling is on by default.
func New(levels int, opts ...Option) *Transformer {
	t := &Transformer{
		decomposer: wavelet.Transform{Wavelet: wavelet.Haar},
		levels:     levels,
		scaler:     NewRobustScaler(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.workers < 1 {
		t.workers = runtime.GOMAXPROCS(0)
	}
	return t
}

// Levels returns the decomposition depth.
func (t *Transformer) Levels() int {
	return t.levels
}

// Apply decomposes every trial of src and returns a (trials, channels,
// DecimatedLength(samples, levels)) tensor of absolute terminal detail
// coefficients, robust-scaled per channel when a scaler is configured.
func (t *Transformer) Apply(ctx context.Context, src tensor.Source) (*tensor.Tensor, error) {
	trials, channels, samples := src.Dims()
	if err := ValidateLevel(samples, t.levels); err != nil {
		return nil, err
	}

	// The output shape is fixed before any trial is decomposed; the
	// decomposer has to produce exactly this many coefficients.
	length := DecimatedLength(samples, t.levels)
	out := tensor.New(trials, channels, length)

	t.logger.Info("Applying wavelet transform",
		zap.Int("trials", trials),
		zap.Int("channels", channels),
		zap.Int("samples", samples),
		zap.Int("levels", t.levels),
		zap.Int("decimated", length))

	if channels > 0 {
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(t.workers)
		for i := 0; i < trials; i++ {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return t.trial(src, i, out)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if t.scaler != nil {
		if err := t.scaler.Fit(out); err != nil {
			return nil, err
		}
		if err := t.scaler.Transform(out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// trial decomposes trial i of src into its slot of out.
func (t *Transformer) trial(src tensor.Source, i int, out *tensor.Tensor) error {
	_, channels, samples := src.Dims()

	buf := make([]float64, channels*samples)
	if err := src.ReadTrial(i, buf); err != nil {
		return fmt.Errorf("error reading trial %d: %w", i, err)
	}

	// (channels x samples) viewed as (samples x channels).
	block := mat.NewDense(channels, samples, buf)
	p, err := t.decomposer.Forward(block.T(), t.levels)
	if err != nil {
		return fmt.Errorf("error decomposing trial %d: %w", i, err)
	}
	if len(p.Highpasses) != t.levels {
		return eegprep.Errorf(eegprep.ErrAssertionMismatch, "decomposition",
			"trial %d: %d detail levels, expected %d", i, len(p.Highpasses), t.levels)
	}

	hp := p.Highpasses[t.levels-1]
	rows, cols := hp.Dims()
	if rows != out.Samples || cols != channels {
		return eegprep.Errorf(eegprep.ErrAssertionMismatch, "decomposition",
			"trial %d: level %d detail is %dx%d, expected %dx%d", i, t.levels, rows, cols, out.Samples, channels)
	}

	// Transpose back to (channels x decimated) while taking magnitudes.
	for ch := 0; ch < channels; ch++ {
		series := out.Series(i, ch)
		for k := range series {
			series[k] = math.Abs(hp.At(k, ch))
		}
	}
	return nil
}
