// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dchest/minhtml/cache"
	"github.com/dchest/minhtml/config"
	"github.com/dchest/minhtml/metrics"
	"github.com/dchest/minhtml/middleware"
	"github.com/dchest/minhtml/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory or proxy an upstream, minifying HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringP("listen", "l", ":8080", "address to listen on")
	f.String("root", ".", "directory to serve")
	f.String("upstream", "", "URL of a server to proxy instead of serving a directory")
	f.String("doctype-probe", config.ProbeRequest, "DOCTYPE check: request, response or off")
	f.String("cache", config.CacheMemory, "result cache: none, memory or redis")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	pipeline, err := a.cfg.Pipeline()
	if err != nil {
		return err
	}
	c, closeCache, err := a.newCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	opts := server.Options{
		Addr:     a.cfg.Server.Listen,
		Root:     a.cfg.Server.Root,
		Upstream: a.cfg.Server.Upstream,
		Logger:   a.log,
	}
	var m *metrics.Metrics
	if a.cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		opts.MetricsPath = a.cfg.Server.MetricsPath
		opts.Gatherer = reg
	}
	opts.Gate = &middleware.Gate{
		Pipeline:     pipeline,
		Logger:       a.log,
		Metrics:      m,
		Cache:        c,
		DoctypeProbe: a.cfg.DoctypeProbe,
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	if opts.Upstream != "" {
		a.log.Info("proxying", "upstream", opts.Upstream, "transformers", pipeline.Signature())
	} else {
		a.log.Info("serving", "root", opts.Root, "transformers", pipeline.Signature())
	}
	return srv.Run(ctx)
}

// newCache creates the configured result cache. The returned cache is
// nil when caching is disabled.
func (a *app) newCache(ctx context.Context) (cache.Cache, func(), error) {
	cc := a.cfg.Cache
	switch cc.Backend {
	case config.CacheMemory:
		return cache.NewMemory(cc.MaxEntries), func() {}, nil
	case config.CacheRedis:
		ttl, err := cc.Redis.TTLDuration()
		if err != nil {
			return nil, nil, err
		}
		r := cache.NewRedis(cc.Redis.Addr, cc.Redis.Password, cc.Redis.DB,
			cache.WithPrefix(cc.Redis.Prefix),
			cache.WithTTL(ttl))
		if err := r.Ping(ctx); err != nil {
			a.log.Warn("redis unavailable, minifying without cache until it recovers",
				"addr", cc.Redis.Addr, "error", err)
		}
		return r, func() { r.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
