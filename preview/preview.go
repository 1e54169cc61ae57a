// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package preview renders trials of a stored tensor as line plots, so that
// augmented or decimated trials can be compared with their originals by eye.
package preview

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/tensor"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Dataset is a stored tensor with per-trial labels and identifiers.
type Dataset interface {
	tensor.Source
	Labels() []string
	Identifiers() []string
	Channels() []string
}

// Request selects what to draw.
type Request struct {
	Channel int   // Channel index
	Trials  []int // Trial indices, one line each
	Samples int   // Leading samples to draw, all when zero
	Title   string
}

var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

// Save draws one line per requested trial of ds and writes the image to path.
// The format follows the file extension (png, svg, pdf, ...).
func Save(path string, ds Dataset, req Request) error {
	trials, channels, samples := ds.Dims()
	if req.Channel < 0 || req.Channel >= channels {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "channel", "%d out of range [0, %d)", req.Channel, channels)
	}
	if len(req.Trials) == 0 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "trials", "nothing to plot")
	}
	n := samples
	if req.Samples > 0 && req.Samples < samples {
		n = req.Samples
	}

	p := plot.New()
	p.Title.Text = req.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("Channel %s", channelName(ds.Channels(), req.Channel))
	}
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Amplitude"

	labels, identifiers := ds.Labels(), ds.Identifiers()
	buf := make([]float64, channels*samples)
	for i, trial := range req.Trials {
		if trial < 0 || trial >= trials {
			return eegprep.Errorf(eegprep.ErrInvalidParameter, "trials", "trial %d out of range [0, %d)", trial, trials)
		}
		if err := ds.ReadTrial(trial, buf); err != nil {
			return fmt.Errorf("error reading trial %d: %w", trial, err)
		}

		series := buf[req.Channel*samples : req.Channel*samples+n]
		pts := make(plotter.XYs, n)
		for k, v := range series {
			pts[k] = plotter.XY{X: float64(k), Y: v}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("error creating line for trial %d: %w", trial, err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]

		p.Add(line)
		p.Legend.Add(legend(trial, labels, identifiers), line)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eegprep.Classify(filepath.Dir(path), err)
	}
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return eegprep.Classify(path, err)
	}
	return nil
}

func legend(trial int, labels, identifiers []string) string {
	s := fmt.Sprintf("#%d", trial)
	if trial < len(labels) && labels[trial] != "" {
		s += " " + labels[trial]
	}
	if trial < len(identifiers) && identifiers[trial] != "" {
		s += " (" + identifiers[trial] + ")"
	}
	return s
}

func channelName(names []string, ch int) string {
	if ch < len(names) && names[ch] != "" {
		return names[ch]
	}
	return fmt.Sprint(ch)
}
