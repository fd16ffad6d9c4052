// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server serves a directory, or proxies an upstream,
// minifying HTML responses on the way out.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/dchest/minhtml/logging"
	"github.com/dchest/minhtml/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

type Options struct {
	Addr string
	// Root is the directory to serve. Ignored when Upstream is set.
	Root string
	// Upstream is the base URL of a server to proxy.
	Upstream string
	// MetricsPath serves Gatherer's metrics. Empty disables it.
	MetricsPath string
	Gatherer    prometheus.Gatherer
	Gate        *middleware.Gate
	Logger      *slog.Logger
}

type Server struct {
	log     *slog.Logger
	handler http.Handler
	srv     *http.Server
}

func New(opts Options) (*Server, error) {
	log := logging.OrNop(opts.Logger)
	gate := opts.Gate
	if gate == nil {
		gate = &middleware.Gate{Logger: log}
	}

	var content http.Handler
	if opts.Upstream != "" {
		p, err := newProxy(opts.Upstream, log)
		if err != nil {
			return nil, err
		}
		content = p
	} else {
		root := opts.Root
		if root == "" {
			root = "."
		}
		content = http.FileServer(http.Dir(root))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok")
	})
	if opts.MetricsPath != "" {
		g := opts.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle(opts.MetricsPath, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	r.Handle("/*", gate.Handler(content))

	return &Server{
		log:     log,
		handler: r,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.srv.Addr)
		serverErrors <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(sctx); err != nil {
			s.log.Error("graceful shutdown did not complete", "timeout", ShutdownTimeout, "error", err)
			s.srv.Close()
			return err
		}
		return nil
	}
}

func newProxy(upstream string, log *slog.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", upstream)
	}
	p := httputil.NewSingleHostReverseProxy(u)
	director := p.Director
	p.Director = func(r *http.Request) {
		director(r)
		// Bodies must arrive uncompressed to be minified.
		r.Header.Del("Accept-Encoding")
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DisableCompression = true
	p.Transport = t
	p.ErrorLog = slog.NewLogLogger(log.Handler(), slog.LevelError)
	return p, nil
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()))
		})
	}
}
