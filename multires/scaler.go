// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package multires

import (
	"math"
	"sort"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/tensor"
)

// DefaultQuantileRange is the inter-quartile range, in percent.
var DefaultQuantileRange = [2]float64{25, 75}

// RobustScaler centers each channel on its median and divides by its
// inter-quantile range. Statistics are pooled over every trial and sample of
// a channel, so the same affine map applies to all trials.
type RobustScaler struct {
	QuantileRange [2]float64 // Lower and upper quantile, in percent
	Center        []float64  // Per-channel median, set by Fit
	Scale         []float64  // Per-channel quantile range, set by Fit
}

// NewRobustScaler returns an unfitted scaler using DefaultQuantileRange.
func NewRobustScaler() *RobustScaler {
	return &RobustScaler{QuantileRange: DefaultQuantileRange}
}

// Validate checks the quantile range.
func (s *RobustScaler) Validate() error {
	lo, hi := s.QuantileRange[0], s.QuantileRange[1]
	if lo < 0 || hi > 100 || lo >= hi {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "quantile_range",
			"[%g, %g], need 0 <= low < high <= 100", lo, hi)
	}
	return nil
}

// Fit computes per-channel statistics from t.
func (s *RobustScaler) Fit(t *tensor.Tensor) error {
	if err := s.Validate(); err != nil {
		return err
	}

	trials, channels, samples := t.Dims()
	s.Center = make([]float64, channels)
	s.Scale = make([]float64, channels)

	values := make([]float64, 0, trials*samples)
	for ch := 0; ch < channels; ch++ {
		values = values[:0]
		for i := 0; i < trials; i++ {
			values = append(values, t.Series(i, ch)...)
		}
		if len(values) == 0 {
			s.Scale[ch] = 1
			continue
		}
		sort.Float64s(values)

		s.Center[ch] = quantile(values, 0.5)
		iqr := quantile(values, s.QuantileRange[1]/100) - quantile(values, s.QuantileRange[0]/100)
		if iqr == 0 {
			iqr = 1
		}
		s.Scale[ch] = iqr
	}
	return nil
}

// Transform scales t in place with the fitted statistics.
func (s *RobustScaler) Transform(t *tensor.Tensor) error {
	trials, channels, _ := t.Dims()
	if len(s.Center) != channels || len(s.Scale) != channels {
		return eegprep.Errorf(eegprep.ErrAssertionMismatch, "scaler",
			"fitted on %d channels, got %d", len(s.Center), channels)
	}

	for i := 0; i < trials; i++ {
		for ch := 0; ch < channels; ch++ {
			series := t.Series(i, ch)
			for k, v := range series {
				series[k] = (v - s.Center[ch]) / s.Scale[ch]
			}
		}
	}
	return nil
}

// FitTransform fits on t and then scales it in place.
func (s *RobustScaler) FitTransform(t *tensor.Tensor) error {
	if err := s.Fit(t); err != nil {
		return err
	}
	return s.Transform(t)
}

// quantile returns the p-quantile of sorted, interpolating linearly between
// the two order statistics around position p*(n-1).
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-float64(i))*(sorted[i+1]-sorted[i])
}
