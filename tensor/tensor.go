// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package tensor holds dense (trials, channels, samples) arrays and persists them.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major array of shape (Trials, Channels, Samples).
type Tensor struct {
	Trials   int
	Channels int
	Samples  int
	Data     []float64
}

// New allocates a zeroed tensor.
func New(trials, channels, samples int) *Tensor {
	return &Tensor{
		Trials:   trials,
		Channels: channels,
		Samples:  samples,
		Data:     make([]float64, trials*channels*samples),
	}
}

// Shape returns (trials, channels, samples).
func (t *Tensor) Shape() [3]int {
	return [3]int{t.Trials, t.Channels, t.Samples}
}

// Dims implements Source.
func (t *Tensor) Dims() (trials, channels, samples int) {
	return t.Trials, t.Channels, t.Samples
}

// Trial returns the (channels*samples) block of trial i. The slice aliases Data.
func (t *Tensor) Trial(i int) []float64 {
	n := t.Channels * t.Samples
	return t.Data[i*n : (i+1)*n : (i+1)*n]
}

// Series returns the samples of one channel of one trial. The slice aliases Data.
func (t *Tensor) Series(trial, channel int) []float64 {
	off := (trial*t.Channels + channel) * t.Samples
	return t.Data[off : off+t.Samples : off+t.Samples]
}

// At returns a single element.
func (t *Tensor) At(trial, channel, sample int) float64 {
	return t.Data[(trial*t.Channels+channel)*t.Samples+sample]
}

// Matrix returns trial i as a (channels x samples) matrix sharing Data.
func (t *Tensor) Matrix(i int) *mat.Dense {
	return mat.NewDense(t.Channels, t.Samples, t.Trial(i))
}

// ReadTrial implements Source.
func (t *Tensor) ReadTrial(i int, dst []float64) error {
	if i < 0 || i >= t.Trials {
		return fmt.Errorf("trial %d out of range [0, %d)", i, t.Trials)
	}
	if len(dst) != t.Channels*t.Samples {
		return fmt.Errorf("destination holds %d values, trial has %d", len(dst), t.Channels*t.Samples)
	}
	copy(dst, t.Trial(i))
	return nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := *t
	c.Data = append([]float64(nil), t.Data...)
	return &c
}

// Source gives per-trial access to a tensor without requiring all of it in memory.
type Source interface {
	// Dims returns (trials, channels, samples).
	Dims() (trials, channels, samples int)
	// ReadTrial copies the (channels*samples) block of trial i into dst.
	// It is safe to call concurrently for different trials.
	ReadTrial(i int, dst []float64) error
}

// Artifact is a persisted tensor together with its per-trial metadata.
type Artifact struct {
	Tensor      *Tensor
	Labels      []string // One per trial
	Identifiers []string // One per trial, empty when unset
	Channels    []string // Channel names, optional
	SampleRate  float64  // Samples per second along the last axis, optional
}

// Validate checks that the metadata agrees with the tensor shape.
func (a *Artifact) Validate() error {
	if a.Tensor == nil {
		return fmt.Errorf("artifact has no tensor")
	}
	if len(a.Tensor.Data) != a.Tensor.Trials*a.Tensor.Channels*a.Tensor.Samples {
		return fmt.Errorf("tensor holds %d values, shape %v needs %d",
			len(a.Tensor.Data), a.Tensor.Shape(), a.Tensor.Trials*a.Tensor.Channels*a.Tensor.Samples)
	}
	if len(a.Labels) != a.Tensor.Trials {
		return fmt.Errorf("%d labels for %d trials", len(a.Labels), a.Tensor.Trials)
	}
	if len(a.Identifiers) != 0 && len(a.Identifiers) != a.Tensor.Trials {
		return fmt.Errorf("%d identifiers for %d trials", len(a.Identifiers), a.Tensor.Trials)
	}
	if len(a.Channels) != 0 && len(a.Channels) != a.Tensor.Channels {
		return fmt.Errorf("%d channel names for %d channels", len(a.Channels), a.Tensor.Channels)
	}
	return nil
}
