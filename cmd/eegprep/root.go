// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/internal/catalog"
	"github.com/OpenPSG/eegprep/internal/config"
	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app holds the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	subjects []string
	duration int
	action   string
	level    int
	scale    bool

	cfg     *config.Config
	logger  *zap.Logger
	catalog *catalog.Catalog
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "eegprep",
		Short:         "Prepare EEG recordings for machine learning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			// Syncing stderr fails on some terminals; nothing useful can be done about it.
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", getEnv("EEGPREP_CONFIG", ""), "path to the YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", getEnv("EEGPREP_LOG_LEVEL", ""), "log level (debug, info, warn, error)")
	flags.StringSliceVar(&a.subjects, "subject", nil, "subjects to process, overrides the configuration")
	flags.IntVar(&a.duration, "duration", 0, "samples per trial, 5000 keeps whole epochs")
	flags.StringVar(&a.action, "action", "", "epoch boundaries to use (thinking_inds, clearing_inds)")
	flags.IntVar(&a.level, "level", 0, "wavelet decomposition depth")
	flags.BoolVar(&a.scale, "scale", true, "robust-scale the wavelet features")

	root.AddCommand(
		a.stageCommand(pipeline.StageSegment, "Cut trials out of the raw recordings", (*pipeline.Runner).Segment),
		a.stageCommand(pipeline.StageAugment, "Add noisy copies of the segmented trials", (*pipeline.Runner).Augment),
		a.stageCommand(pipeline.StageDecompose, "Compute decimated wavelet features", (*pipeline.Runner).Decompose),
		a.stageCommand(pipeline.StageExport, "Write the wavelet features as Parquet", (*pipeline.Runner).Export),
		a.runCommand(),
		a.catalogCommand(),
		a.plotCommand(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("subject") {
		cfg.Subjects = a.subjects
	}
	if flags.Changed("duration") {
		cfg.Duration = a.duration
	}
	if flags.Changed("action") {
		action, err := epochs.ParseAction(a.action)
		if err != nil {
			return err
		}
		cfg.Action = action
	}
	if flags.Changed("level") {
		cfg.Level = a.level
	}
	if flags.Changed("scale") {
		cfg.Scale = &a.scale
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, logging.WithOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// getEnv returns the value of an environment variable or a fallback.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// closeCatalog closes the catalog if a command opened it.
func (a *app) closeCatalog() error {
	if a.catalog == nil {
		return nil
	}
	err := a.catalog.Close()
	a.catalog = nil
	return err
}

// openCatalog opens the configured catalog, or returns nil when it is disabled.
func (a *app) openCatalog() (*catalog.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	path := a.cfg.CatalogPath()
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eegprep.Classify(filepath.Dir(path), err)
	}
	c, err := catalog.Open(path)
	if err != nil {
		return nil, err
	}
	a.catalog = c
	return c, nil
}

func (a *app) runner(opts ...pipeline.Option) (*pipeline.Runner, error) {
	opts = append(opts, pipeline.WithLogger(a.logger))
	c, err := a.openCatalog()
	if err != nil {
		return nil, err
	}
	if c != nil {
		opts = append(opts, pipeline.WithRecorder(c))
	}
	return pipeline.New(a.cfg, opts...), nil
}

// stageCommand runs a single stage for every selected subject.
func (a *app) stageCommand(stage, short string, run func(*pipeline.Runner, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   stage,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rn, err := a.runner()
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.closeCatalog()) }()

			if len(a.cfg.Subjects) == 0 {
				return eegprep.Errorf(eegprep.ErrInvalidParameter, "subjects", "no subjects to process")
			}

			var errs error
			for _, subject := range a.cfg.Subjects {
				if err := cmd.Context().Err(); err != nil {
					return multierr.Append(errs, err)
				}
				if err := run(rn, cmd.Context(), subject); err != nil {
					a.logger.Error("Subject failed", zap.String("subject", subject), zap.String("stage", stage), zap.Error(err))
					errs = multierr.Append(errs, &eegprep.SubjectError{Subject: subject, Stage: stage, Err: err})
				}
			}
			return errs
		},
	}
}

func (a *app) runCommand() *cobra.Command {
	var withExport bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Segment, optionally augment, and decompose every subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rn, err := a.runner(pipeline.WithExport(withExport))
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.closeCatalog()) }()

			return rn.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&withExport, "export", false, "also write Parquet exports")
	return cmd
}
