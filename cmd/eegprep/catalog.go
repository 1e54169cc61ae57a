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
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/internal/catalog"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func (a *app) catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the artifacts written so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			c, err := a.openCatalog()
			if err != nil {
				return err
			}
			if c == nil {
				return eegprep.Errorf(eegprep.ErrInvalidParameter, "catalog", "no catalog configured")
			}
			defer func() { err = multierr.Append(err, a.closeCatalog()) }()

			subjects := a.cfg.Subjects
			if !cmd.Flags().Changed("subject") {
				subjects = []string{""}
			}

			var entries []*catalog.Entry
			for _, subject := range subjects {
				found, err := c.List(subject)
				if err != nil {
					return err
				}
				entries = append(entries, found...)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tSUBJECT\tSTAGE\tSHAPE\tPATH")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%dx%dx%d\t%s\n",
					e.CreatedAt.UTC().Format(time.RFC3339), e.Subject, e.Stage,
					e.Shape[0], e.Shape[1], e.Shape[2], e.Path)
			}
			return w.Flush()
		},
	}
}
