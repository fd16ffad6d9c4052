// Copyright 2014 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fspoll implements a primitive polling-based filesystem watcher.
package fspoll

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

type Watcher struct {
	dir           string
	excludeGlobs  []string
	excludeDirs   []string
	state         map[string]os.FileInfo
	interval      time.Duration
	sleepInterval time.Duration

	// event channels, closed when the watcher stops
	Change chan bool
	Error  chan error
}

const (
	DefaultInterval = 1 * time.Second
	SleepAfter      = 5 * time.Minute
)

// Options configures Watch.
type Options struct {
	// ExcludeGlobs are matched against both full paths and base names.
	ExcludeGlobs []string
	// ExcludeDirs are skipped with their contents.
	ExcludeDirs []string
	// Interval between polls; zero means DefaultInterval.
	Interval time.Duration
	// SleepInterval is used after SleepAfter without changes; zero means
	// five times DefaultInterval, negative means Interval.
	SleepInterval time.Duration
}

// Watch polls the given directory and subdirectories and files inside it
// for changes until ctx is done.
//
// When there was no change for 5 minutes, the poll interval switches to
// the sleep interval. It's back to normal interval if a change is detected.
func Watch(ctx context.Context, dir string, opts Options) (w *Watcher, err error) {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	sleepInterval := opts.SleepInterval
	if sleepInterval < 0 {
		sleepInterval = interval
	} else if sleepInterval == 0 {
		sleepInterval = DefaultInterval * 5
	}
	w = &Watcher{
		dir:           dir,
		excludeGlobs:  opts.ExcludeGlobs,
		interval:      interval,
		sleepInterval: sleepInterval,
		Change:        make(chan bool),
		Error:         make(chan error),
	}
	for _, d := range opts.ExcludeDirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, err
		}
		w.excludeDirs = append(w.excludeDirs, abs)
	}
	// Get initial state
	w.state, err = w.getState()
	if err != nil {
		return nil, err
	}
	// Start watching goroutine
	go w.start(ctx)
	return w, nil
}

func (w *Watcher) start(ctx context.Context) {
	defer close(w.Change)
	defer close(w.Error)
	lastChangeTime := time.Now()
	currentInterval := w.interval
	for {
		hasChange, err := w.check()
		switch {
		case err != nil:
			select {
			case w.Error <- err:
			case <-ctx.Done():
				return
			}
		case hasChange:
			lastChangeTime = time.Now()
			currentInterval = w.interval
			select {
			case w.Change <- true:
			case <-ctx.Done():
				return
			}
		case time.Since(lastChangeTime) > SleepAfter:
			currentInterval = w.sleepInterval
		}
		select {
		case <-time.After(currentInterval):
			continue
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) excluded(path string, fi os.FileInfo) (bool, error) {
	if fi.IsDir() && len(w.excludeDirs) > 0 {
		abs, err := filepath.Abs(path)
		if err != nil {
			return false, err
		}
		for _, d := range w.excludeDirs {
			if abs == d {
				return true, nil
			}
		}
	}
	for _, glob := range w.excludeGlobs {
		matched, err := filepath.Match(glob, path)
		if err != nil {
			return false, err
		}
		if !matched {
			m, err := filepath.Match(glob, fi.Name())
			if err != nil {
				return false, err
			}
			matched = m
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func (w *Watcher) getState() (map[string]os.FileInfo, error) {
	ns := make(map[string]os.FileInfo)
	err := filepath.Walk(w.dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		skip, err := w.excluded(path, fi)
		if err != nil {
			return err
		}
		if skip {
			// Skip excluded path
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		ns[path] = fi
		return nil
	})
	return ns, err
}

func (w *Watcher) check() (hasChange bool, err error) {
	ns, err := w.getState()
	if err != nil {
		return false, err
	}
	defer func() {
		// Set new state as current when this function finishes.
		w.state = ns
	}()
	if len(ns) != len(w.state) {
		return true, nil
	}
	// Compare files.
	for path, nfi := range ns {
		ofi, ok := w.state[path]
		if !ok {
			// New file.
			return true, nil
		}
		// Compare modes.
		if ofi.Mode() != nfi.Mode() {
			return true, nil
		}
		if !ofi.IsDir() {
			// Compare times.
			if !ofi.ModTime().Equal(nfi.ModTime()) {
				return true, nil
			}
			// Compare sizes.
			if ofi.Size() != nfi.Size() {
				return true, nil
			}
		}
	}
	// Deleted files are covered by the length check, since every new
	// path was found in the old state.
	return false, nil
}
