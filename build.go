// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dchest/minhtml/builder"
	"github.com/dchest/minhtml/fspoll"
	"github.com/spf13/cobra"
)

func (a *app) buildCmd() *cobra.Command {
	var clean, watch bool
	cmd := &cobra.Command{
		Use:   "build <in> <out>",
		Short: "Minify HTML files of a directory tree into another directory",
		Long: `Build walks <in>, writes minified copies of HTML files to <out> and
copies every other file. Files unchanged since the previous build are
skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.build(ctx, args[0], args[1], clean, watch)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&clean, "clean", false, "remove output directory before building")
	f.BoolVar(&watch, "watch", false, "rebuild when files change")
	f.Int("workers", 0, "number of parallel jobs (default one per CPU)")
	return cmd
}

func (a *app) build(ctx context.Context, in, out string, clean, watch bool) error {
	pipeline, err := a.cfg.Pipeline()
	if err != nil {
		return err
	}
	compress := a.cfg.Build.Compress
	b, err := builder.New(builder.Options{
		InDir:      in,
		OutDir:     out,
		Extensions: a.cfg.Build.Extensions,
		Workers:    a.cfg.Build.Workers,
		Compress:   &compress,
		Pipeline:   pipeline,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}
	if clean {
		if err := b.Clean(); err != nil {
			return err
		}
	}
	if err := b.Build(ctx); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	w, err := fspoll.Watch(ctx, in, fspoll.Options{
		ExcludeGlobs: []string{"*~", ".DS_Store"},
		ExcludeDirs:  []string{out},
		Interval:     500 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	a.log.Info("watching for changes, press Ctrl+C to quit", "dir", in)
	for {
		select {
		case _, ok := <-w.Change:
			if !ok {
				return nil
			}
			if err := b.Build(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("build failed", "error", err)
			}
		case err, ok := <-w.Error:
			if !ok {
				return nil
			}
			a.log.Error("watcher failed", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}
