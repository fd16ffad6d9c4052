// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dchest/minhtml/filewriter"
	"github.com/spf13/cobra"
)

func (a *app) minifyCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "minify [file...]",
		Short: "Minify files or standard input",
		Long: `Minify runs the configured transformers over each file, or over
standard input when no file is given. Output goes to standard output,
to the file given with -o, or into the directory given with -o when
there is more than one input file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.minify(cmd, args, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, or directory for several inputs")
	return cmd
}

func (a *app) minify(cmd *cobra.Command, files []string, output string) error {
	pipeline, err := a.cfg.Pipeline()
	if err != nil {
		return err
	}
	fw, err := filewriter.New(nil)
	if err != nil {
		return err
	}
	write := func(name, s string) error {
		if output == "" {
			_, err := io.WriteString(cmd.OutOrStdout(), s)
			return err
		}
		if len(files) > 1 {
			return fw.WriteString(filepath.Join(output, filepath.Base(name)), s)
		}
		return fw.WriteString(output, s)
	}

	if len(files) == 0 {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return write("", pipeline.Apply(string(b)))
	}
	for _, name := range files {
		b, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		out := pipeline.Apply(string(b))
		a.log.Debug("minified", "file", name, "bytes_in", len(b), "bytes_out", len(out))
		if err := write(name, out); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
