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
	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/internal/catalog"
	"github.com/OpenPSG/eegprep/preview"
	"github.com/OpenPSG/eegprep/tensor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) plotCommand() *cobra.Command {
	var (
		stage   string
		out     string
		channel int
		trials  []int
		samples int
	)

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Draw trials of a stored tensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(a.cfg.Subjects) != 1 {
				return eegprep.Errorf(eegprep.ErrInvalidParameter, "subject", "plot needs exactly one subject, got %d", len(a.cfg.Subjects))
			}
			paths := a.cfg.Subject(a.cfg.Subjects[0])

			var src string
			switch catalog.Stage(stage) {
			case catalog.Segmented:
				src = paths.Segmented
			case catalog.Augmented:
				src = paths.Augmented
			case catalog.Decimated:
				src = paths.Decimated
			default:
				return eegprep.Errorf(eegprep.ErrInvalidKey, "stage", "unsupported stage %q, expected segmented, augmented or decimated", stage)
			}

			m, err := tensor.Open(src)
			if err != nil {
				return err
			}
			defer m.Close()

			err = preview.Save(out, m, preview.Request{Channel: channel, Trials: trials, Samples: samples})
			if err != nil {
				return err
			}
			a.logger.Info("Plot saved", zap.String("subject", paths.Subject), zap.String("path", out))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&stage, "stage", string(catalog.Segmented), "tensor to draw (segmented, augmented, decimated)")
	flags.StringVar(&out, "out", "preview.png", "output image, format from the extension")
	flags.IntVar(&channel, "channel", 0, "channel index")
	flags.IntSliceVar(&trials, "trial", []int{0}, "trial indices to draw")
	flags.IntVar(&samples, "samples", 0, "leading samples to draw, all when zero")
	return cmd
}
