// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package augment enlarges a trial tensor with noisy copies of each trial.
package augment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/tensor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Original identifies the unmodified trials at the head of the output.
const Original = "original"

// Method is a noise model.
type Method int

const (
	// Jitter adds N(0, sigma) noise to every sample.
	Jitter Method = iota + 1
	// Scaling multiplies each time step, across all channels, by N(1, sigma).
	Scaling
)

func (m Method) String() string {
	switch m {
	case Jitter:
		return "jitter"
	case Scaling:
		return "scaling"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a method name onto a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "jitter":
		return Jitter, nil
	case "scaling":
		return Scaling, nil
	}
	return 0, eegprep.Errorf(eegprep.ErrInvalidKey, "method", "unsupported augmentation %q, expected jitter or scaling", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if m != Jitter && m != Scaling {
		return nil, eegprep.Errorf(eegprep.ErrInvalidKey, "method", "unsupported augmentation %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Params describes one augmentation run.
type Params struct {
	Method    Method
	Factor    int     // Noisy copies per trial
	LowSigma  float64 // First noise level
	HighSigma float64 // Last noise level
	Seed      uint64
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if _, err := p.Method.MarshalText(); err != nil {
		return err
	}
	if p.Factor < 1 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "factor", "%d, must be at least 1", p.Factor)
	}
	if p.LowSigma < 0 || p.HighSigma < 0 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "sigma", "[%g, %g], must not be negative", p.LowSigma, p.HighSigma)
	}
	return nil
}

// Sigmas returns Factor evenly spaced noise levels from LowSigma to HighSigma.
func (p Params) Sigmas() []float64 {
	if p.Factor < 1 {
		return nil
	}
	sigmas := make([]float64, p.Factor)
	if p.Factor == 1 {
		sigmas[0] = p.LowSigma
		return sigmas
	}
	return floats.Span(sigmas, p.LowSigma, p.HighSigma)
}

// Identifier names the copy of a trial with the given label made at sigma.
func (p Params) Identifier(sigma float64, label string) string {
	return fmt.Sprintf("%s__sigma_%.1e__target_%s", p.Method, sigma, label)
}

// Augmenter produces noisy copies of trials.
type Augmenter struct {
	params  Params
	workers int
	logger  *zap.Logger
}

// Option configures an Augmenter.
type Option func(*Augmenter)

// WithWorkers bounds the number of output trials generated concurrently.
// Values below one use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Augmenter) { a.workers = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Augmenter) { a.logger = logger }
}

// New creates an Augmenter.
func New(params Params, opts ...Option) *Augmenter {
	a := &Augmenter{
		params: params,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = runtime.GOMAXPROCS(0)
	}
	return a
}

// Augment returns the n trials of src followed by Factor*n noisy copies.
// Copy i at sigma index s lives in slot n + s*n + i. Every slot draws from its
// own generator seeded from (Seed, slot), so output does not depend on the
// number of workers.
func (a *Augmenter) Augment(ctx context.Context, src tensor.Source, labels []string) (*tensor.Artifact, error) {
	if err := a.params.Validate(); err != nil {
		return nil, err
	}
	n, channels, samples := src.Dims()
	if len(labels) != n {
		return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "labels", "%d labels for %d trials", len(labels), n)
	}

	sigmas := a.params.Sigmas()
	total := n + len(sigmas)*n

	a.logger.Info("Augmenting dataset",
		zap.Stringer("method", a.params.Method),
		zap.Int("trials", n),
		zap.Int("factor", a.params.Factor),
		zap.Float64s("sigmas", sigmas),
		zap.Int("output_trials", total))

	out := &tensor.Artifact{
		Tensor:      tensor.New(total, channels, samples),
		Labels:      make([]string, total),
		Identifiers: make([]string, total),
	}
	for i := 0; i < n; i++ {
		out.Labels[i] = labels[i]
		out.Identifiers[i] = Original
	}
	for s, sigma := range sigmas {
		for i := 0; i < n; i++ {
			slot := n + s*n + i
			out.Labels[slot] = labels[i]
			out.Identifiers[slot] = a.params.Identifier(sigma, labels[i])
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for slot := 0; slot < total; slot++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			i := slot % max(n, 1)
			dst := out.Tensor.Trial(slot)
			if err := src.ReadTrial(i, dst); err != nil {
				return fmt.Errorf("error reading trial %d: %w", i, err)
			}
			if slot < n {
				return nil
			}

			noise := distuv.Normal{
				Sigma: sigmas[(slot-n)/n],
				Src:   rand.NewPCG(a.params.Seed, uint64(slot)),
			}
			switch a.params.Method {
			case Jitter:
				jitter(dst, noise)
			case Scaling:
				scale(dst, channels, samples, noise)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// jitter adds zero-mean noise to every value of a trial.
func jitter(trial []float64, noise distuv.Normal) {
	for k := range trial {
		trial[k] += noise.Rand()
	}
}

// scale multiplies every channel at time step k by the same factor drawn
// from a unit-mean normal.
func scale(trial []float64, channels, samples int, noise distuv.Normal) {
	noise.Mu = 1
	factors := make([]float64, samples)
	for k := range factors {
		factors[k] = noise.Rand()
	}
	for ch := 0; ch < channels; ch++ {
		floats.Mul(trial[ch*samples:(ch+1)*samples], factors)
	}
}
