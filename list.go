// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dchest/minhtml/transformers"
	"github.com/spf13/cobra"
)

func (a *app) transformersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transformers",
		Short: "List available transformers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := a.cfg.Specs()
			if err != nil {
				return err
			}
			configured := make(map[string]bool)
			for _, s := range specs {
				configured[s.Name] = true
			}
			defaults := make(map[string]bool)
			for _, n := range transformers.DefaultNames {
				defaults[n] = true
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDEFAULT\tCONFIGURED")
			for _, n := range transformers.Names() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", n, yesNo(defaults[n]), yesNo(configured[n]))
			}
			return tw.Flush()
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
