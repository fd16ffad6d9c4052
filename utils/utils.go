// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package utils contains utility functions.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// HexHash returns the hexadecimal SHA256 hash of the concatenated parts,
// each part followed by a zero byte except the last.
func HexHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Returns true if filename has one of the given extension.
// Extensions must start with dot. Comparison ignores case.
func HasFileExt(filename string, extensions []string) bool {
	ext := filepath.Ext(filename)
	for _, v := range extensions {
		if strings.EqualFold(v, ext) {
			return true
		}
	}
	return false
}

// IsIgnoredFile returns true for editor backups and Finder metadata.
func IsIgnoredFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, "~") || base == ".DS_Store"
}

// Pool is a worker pool for parallel job processing.
type Pool struct {
	sync.Mutex
	wg   sync.WaitGroup
	jobs chan interface{}
	err  error
}

// NewPool creates a new pool of runtime.NumCPU() workers which calls fn
// for each added item and stores the first returned error.
func NewPool(fn func(interface{}) error) *Pool {
	return NewPoolSize(runtime.NumCPU(), fn)
}

// NewPoolSize is like NewPool with the given number of workers.
// Non-positive sizes mean runtime.NumCPU().
func NewPoolSize(parallelism int, fn func(interface{}) error) *Pool {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	p := &Pool{
		jobs: make(chan interface{}, parallelism),
	}
	// Launch workers.
	for i := 0; i < parallelism; i++ {
		go func() {
			for j := range p.jobs {
				err := fn(j)
				if err != nil {
					p.Lock()
					if p.err == nil {
						p.err = err
					}
					p.Unlock()
				}
				p.wg.Done()
			}
		}()
	}
	return p
}

// Add adds a new job to pool. Function passed to
// NewPool will be called for each job in a worker goroutine.
//
// After finishing adding items, Err must be called on the pool
// to wait for unfinished jobs to complete and get the first error.
func (p *Pool) Add(job interface{}) {
	p.wg.Add(1)
	p.jobs <- job
}

// Err waits for all jobs, stops the workers and returns the first error.
// The pool must not be used after Err.
func (p *Pool) Err() error {
	p.wg.Wait()
	close(p.jobs)
	return p.err
}
