// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package pipeline runs the preprocessing stages for whole subjects, reading
// and writing the file layout described by the configuration.
package pipeline

import (
	"context"
	"fmt"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/augment"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/export"
	"github.com/OpenPSG/eegprep/internal/catalog"
	"github.com/OpenPSG/eegprep/internal/config"
	"github.com/OpenPSG/eegprep/multires"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/OpenPSG/eegprep/segment"
	"github.com/OpenPSG/eegprep/tensor"
	"github.com/OpenPSG/eegprep/wavelet"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stage names used in logs and errors.
const (
	StageSegment   = "segment"
	StageAugment   = "augment"
	StageDecompose = "decompose"
	StageExport    = "export"
)

// Recorder stores a description of each written artifact.
type Recorder interface {
	Record(e *catalog.Entry, params any) error
}

// Runner executes pipeline stages.
type Runner struct {
	cfg      *config.Config
	reader   recording.Reader
	recorder Recorder
	export   bool
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithReader replaces the EDF recording reader.
func WithReader(r recording.Reader) Option {
	return func(rn *Runner) { rn.reader = r }
}

// WithRecorder records every written artifact.
func WithRecorder(rec Recorder) Option {
	return func(rn *Runner) { rn.recorder = rec }
}

// WithExport makes Run finish each subject with a Parquet export.
func WithExport(enabled bool) Option {
	return func(rn *Runner) { rn.export = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(rn *Runner) { rn.logger = logger }
}

// New creates a Runner for a validated configuration.
func New(cfg *config.Config, opts ...Option) *Runner {
	rn := &Runner{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(rn)
	}
	if rn.reader == nil {
		rn.reader = &recording.EDFReader{
			Ignore: cfg.IgnoreChannels,
			Keep:   cfg.KeepChannels,
			Logger: rn.logger,
		}
	}
	return rn
}

// Segment cuts the trials of one subject and saves them.
func (rn *Runner) Segment(ctx context.Context, subject string) error {
	paths := rn.cfg.Subject(subject)
	logger := rn.logger.With(zap.String("subject", subject), zap.String("stage", StageSegment))

	table, err := epochs.LoadTable(paths.Index, rn.cfg.Action)
	if err != nil {
		return err
	}
	labels, err := epochs.LoadLabels(paths.Prompts)
	if err != nil {
		return err
	}
	rec, err := rn.reader.Read(paths.Dir)
	if err != nil {
		return err
	}

	engine := segment.New(segment.WithLogger(logger), segment.WithWorkers(rn.cfg.Workers))
	a, err := engine.Segment(ctx, rec, table, labels, rn.cfg.Duration)
	if err != nil {
		return err
	}
	if err := tensor.Save(paths.Segmented, a); err != nil {
		return err
	}

	shape := a.Tensor.Shape()
	logger.Info("Dataset saved", zap.String("path", paths.Segmented), zap.Ints("shape", shape[:]))
	return rn.record(subject, catalog.Segmented, paths.Segmented, shape, map[string]any{
		"action":   rn.cfg.Action.String(),
		"duration": rn.cfg.Duration,
		"channels": a.Channels,
	})
}

// Augment adds noisy copies to the segmented trials of one subject.
func (rn *Runner) Augment(ctx context.Context, subject string) error {
	if rn.cfg.Augment == nil {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "augment", "no augmentation configured")
	}
	paths := rn.cfg.Subject(subject)
	logger := rn.logger.With(zap.String("subject", subject), zap.String("stage", StageAugment))

	m, err := tensor.Open(paths.Segmented)
	if err != nil {
		return err
	}
	defer m.Close()

	params := rn.cfg.Augment.Params()
	aug := augment.New(params, augment.WithLogger(logger), augment.WithWorkers(rn.cfg.Workers))
	a, err := aug.Augment(ctx, m, m.Labels())
	if err != nil {
		return err
	}
	a.Channels = m.Channels()
	a.SampleRate = m.SampleRate()

	if err := tensor.Save(paths.Augmented, a); err != nil {
		return err
	}

	shape := a.Tensor.Shape()
	logger.Info("Dataset saved", zap.String("path", paths.Augmented), zap.Ints("shape", shape[:]))
	return rn.record(subject, catalog.Augmented, paths.Augmented, shape, map[string]any{
		"method":     params.Method.String(),
		"factor":     params.Factor,
		"low_sigma":  params.LowSigma,
		"high_sigma": params.HighSigma,
		"seed":       params.Seed,
	})
}

// Decompose runs the multiresolution transform over the segmented trials of
// one subject, or over the augmented trials when augmentation is configured.
func (rn *Runner) Decompose(ctx context.Context, subject string) error {
	paths := rn.cfg.Subject(subject)
	logger := rn.logger.With(zap.String("subject", subject), zap.String("stage", StageDecompose))

	src := paths.Segmented
	if rn.cfg.Augment != nil {
		src = paths.Augmented
	}
	m, err := tensor.Open(src)
	if err != nil {
		return err
	}
	defer m.Close()

	w, err := wavelet.ByName(rn.cfg.Wavelet)
	if err != nil {
		return err
	}
	var scaler *multires.RobustScaler
	if rn.cfg.GetScale() {
		scaler = &multires.RobustScaler{QuantileRange: rn.cfg.QuantileRange}
	}

	tr := multires.New(rn.cfg.Level,
		multires.WithDecomposer(wavelet.Transform{Wavelet: w}),
		multires.WithScaler(scaler),
		multires.WithWorkers(rn.cfg.Workers),
		multires.WithLogger(logger))
	out, err := tr.Apply(ctx, m)
	if err != nil {
		return err
	}

	a := &tensor.Artifact{
		Tensor:      out,
		Labels:      m.Labels(),
		Identifiers: m.Identifiers(),
		Channels:    m.Channels(),
		SampleRate:  m.SampleRate() / float64(int(1)<<rn.cfg.Level),
	}
	if err := tensor.Save(paths.Decimated, a); err != nil {
		return err
	}

	shape := out.Shape()
	logger.Info("Dataset saved", zap.String("path", paths.Decimated), zap.Ints("shape", shape[:]))
	params := map[string]any{
		"source":  src,
		"level":   rn.cfg.Level,
		"wavelet": w.Name,
		"scale":   rn.cfg.GetScale(),
	}
	if scaler != nil {
		params["quantile_range"] = scaler.QuantileRange
	}
	return rn.record(subject, catalog.Decimated, paths.Decimated, shape, params)
}

// Export writes the decimated tensor of one subject as a Parquet table.
func (rn *Runner) Export(ctx context.Context, subject string) error {
	paths := rn.cfg.Subject(subject)
	logger := rn.logger.With(zap.String("subject", subject), zap.String("stage", StageExport))

	m, err := tensor.Open(paths.Decimated)
	if err != nil {
		return err
	}
	defer m.Close()

	e := export.New(export.WithCompression(rn.cfg.ExportCompression), export.WithLogger(logger))
	if _, err := e.Export(ctx, paths.Export, subject, m); err != nil {
		return err
	}

	trials, channels, samples := m.Dims()
	return rn.record(subject, catalog.Exported, paths.Export, [3]int{trials, channels, samples}, map[string]any{
		"source":      paths.Decimated,
		"compression": rn.cfg.ExportCompression,
	})
}

// Run processes every subject, or the configured subjects when none are
// given. A failing subject is logged and skipped; the returned error
// combines one *eegprep.SubjectError per failed subject.
func (rn *Runner) Run(ctx context.Context, subjects ...string) error {
	if len(subjects) == 0 {
		subjects = rn.cfg.Subjects
	}
	if len(subjects) == 0 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "subjects", "no subjects to process")
	}

	var errs error
	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := rn.runSubject(ctx, subject); err != nil {
			rn.logger.Error("Subject failed", zap.String("subject", subject), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (rn *Runner) runSubject(ctx context.Context, subject string) error {
	type step struct {
		name string
		run  func(context.Context, string) error
	}
	steps := []step{{StageSegment, rn.Segment}}
	if rn.cfg.Augment != nil {
		steps = append(steps, step{StageAugment, rn.Augment})
	}
	steps = append(steps, step{StageDecompose, rn.Decompose})
	if rn.export {
		steps = append(steps, step{StageExport, rn.Export})
	}

	for _, s := range steps {
		if err := s.run(ctx, subject); err != nil {
			return &eegprep.SubjectError{Subject: subject, Stage: s.name, Err: err}
		}
	}
	return nil
}

func (rn *Runner) record(subject string, stage catalog.Stage, path string, shape [3]int, params map[string]any) error {
	if rn.recorder == nil {
		return nil
	}
	err := rn.recorder.Record(&catalog.Entry{Subject: subject, Stage: stage, Path: path, Shape: shape}, params)
	if err != nil {
		return fmt.Errorf("error recording %s artifact: %w", stage, err)
	}
	return nil
}
