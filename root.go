// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"log/slog"

	"github.com/dchest/minhtml/config"
	"github.com/dchest/minhtml/logging"
	"github.com/spf13/cobra"
)

type app struct {
	cfgFile string
	debug   bool
	jsonLog bool

	cfg *config.Config
	log *slog.Logger
}

// flagKeys maps command flags to the configuration keys they override.
var flagKeys = map[string]string{
	"listen":        "server.listen",
	"root":          "server.root",
	"upstream":      "server.upstream",
	"doctype-probe": "doctype_probe",
	"cache":         "cache.backend",
	"workers":       "build.workers",
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "minhtml",
		Short: "Minify HTML responses and files",
		Long: `minhtml removes comments and insignificant whitespace from HTML,
keeping pre, textarea and script contents, Livewire markers and
Knockout blocks intact.

Examples:
  # Serve a directory with minified pages
  minhtml serve --root ./public

  # Minify responses of an application server
  minhtml serve --upstream http://localhost:3000

  # Minify a generated site ahead of time
  minhtml build ./public ./dist --clean

  # Minify a single page
  minhtml minify < page.html > page.min.html`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./minhtml.yaml)")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.jsonLog, "json-log", false, "log in JSON format")

	cmd.AddCommand(
		a.serveCmd(),
		a.buildCmd(),
		a.minifyCmd(),
		a.transformersCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return cmd
}

// load reads the configuration and sets up logging before any command runs.
func (a *app) load(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	if a.debug {
		v.Set("log.level", "debug")
	}
	if a.jsonLog {
		v.Set("log.json", true)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Options{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.log)
	return nil
}
