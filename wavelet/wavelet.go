// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package wavelet implements a dyadic discrete wavelet decomposition of
// column signals.
package wavelet

import (
	"math"
	"sort"

	"github.com/OpenPSG/eegprep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Wavelet is an orthogonal analysis filter pair.
type Wavelet struct {
	Name string
	Lo   []float64 // Lowpass (scaling) filter
	Hi   []float64 // Highpass (wavelet) filter
}

// quadratureMirror derives the highpass filter from a lowpass one.
func quadratureMirror(lo []float64) []float64 {
	n := len(lo)
	hi := make([]float64, n)
	for k := range hi {
		hi[k] = lo[n-1-k]
		if k%2 == 1 {
			hi[k] = -hi[k]
		}
	}
	return hi
}

func newWavelet(name string, lo []float64) Wavelet {
	return Wavelet{Name: name, Lo: lo, Hi: quadratureMirror(lo)}
}

var (
	sqrt3 = math.Sqrt(3)

	// Haar is the two-tap Haar wavelet.
	Haar = Wavelet{
		Name: "haar",
		Lo:   []float64{1 / math.Sqrt2, 1 / math.Sqrt2},
		Hi:   []float64{1 / math.Sqrt2, -1 / math.Sqrt2},
	}

	// DB2 is the four-tap Daubechies wavelet.
	DB2 = newWavelet("db2", []float64{
		(1 + sqrt3) / (4 * math.Sqrt2),
		(3 + sqrt3) / (4 * math.Sqrt2),
		(3 - sqrt3) / (4 * math.Sqrt2),
		(1 - sqrt3) / (4 * math.Sqrt2),
	})

	// DB3 is the six-tap Daubechies wavelet.
	DB3 = newWavelet("db3", []float64{
		0.3326705529509569,
		0.8068915093133388,
		0.4598775021193313,
		-0.13501102001039084,
		-0.08544127388224149,
		0.035226291882100656,
	})
)

var registry = map[string]Wavelet{
	Haar.Name: Haar,
	DB2.Name:  DB2,
	DB3.Name:  DB3,
}

// ByName returns a registered wavelet.
func ByName(name string) (Wavelet, error) {
	w, ok := registry[name]
	if !ok {
		return Wavelet{}, eegprep.Errorf(eegprep.ErrInvalidKey, "wavelet", "unknown wavelet %q, expected one of %v", name, Names())
	}
	return w, nil
}

// Names lists the registered wavelets.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pyramid is the result of a multi-level decomposition.
type Pyramid struct {
	Lowpass    *mat.Dense   // Coarsest approximation
	Highpasses []*mat.Dense // Detail coefficients, finest (level 1) first
}

// Transform decomposes column signals with a wavelet.
type Transform struct {
	Wavelet Wavelet
}

// Forward decomposes every column of x (samples x signals) levels times.
// Each level halves the number of rows, rounding up: odd lengths are
// extended by repeating the last sample before periodic filtering.
func (t Transform) Forward(x mat.Matrix, levels int) (*Pyramid, error) {
	if levels < 1 {
		return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "levels", "%d, must be at least 1", levels)
	}
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, eegprep.Errorf(eegprep.ErrInvalidParameter, "signal", "empty input %dx%d", rows, cols)
	}

	// Work on contiguous per-signal columns.
	signals := make([][]float64, cols)
	for c := range signals {
		signals[c] = mat.Col(nil, c, x)
	}

	p := &Pyramid{Highpasses: make([]*mat.Dense, levels)}
	for level := 0; level < levels; level++ {
		n := len(signals[0])
		half := (n + 1) / 2
		hi := mat.NewDense(half, cols, nil)
		next := make([][]float64, cols)
		for c, s := range signals {
			lo, d := t.step(s)
			hi.SetCol(c, d)
			next[c] = lo
		}
		p.Highpasses[level] = hi
		signals = next
	}

	p.Lowpass = mat.NewDense(len(signals[0]), cols, nil)
	for c, s := range signals {
		p.Lowpass.SetCol(c, s)
	}
	return p, nil
}

// step runs one analysis level on a single signal.
func (t Transform) step(s []float64) (lo, hi []float64) {
	if len(s)%2 == 1 {
		s = append(s[:len(s):len(s)], s[len(s)-1])
	}
	n := len(s)
	half := n / 2

	lo = make([]float64, half)
	hi = make([]float64, half)
	window := make([]float64, len(t.Wavelet.Lo))
	for k := 0; k < half; k++ {
		for j := range window {
			window[j] = s[(2*k+j)%n]
		}
		lo[k] = floats.Dot(t.Wavelet.Lo, window)
		hi[k] = floats.Dot(t.Wavelet.Hi, window)
	}
	return lo, hi
}
