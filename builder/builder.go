// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package builder minifies a directory tree of HTML files into an
// output directory.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dchest/minhtml/filewriter"
	"github.com/dchest/minhtml/hashcache"
	"github.com/dchest/minhtml/logging"
	"github.com/dchest/minhtml/metrics"
	"github.com/dchest/minhtml/transformers"
	"github.com/dchest/minhtml/utils"
)

// StateFileName is the hashcache file kept in the output directory.
const StateFileName = ".minhtml-state"

var DefaultExtensions = []string{".html", ".htm"}

type Options struct {
	InDir  string
	OutDir string
	// Extensions of files to minify, starting with a dot.
	// Other files are copied.
	Extensions []string
	// Workers is the number of parallel jobs; zero means one per CPU.
	Workers  int
	Compress *filewriter.CompressConfig
	Pipeline *transformers.Pipeline
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Stats counts the files processed by the last build.
type Stats struct {
	Minified int64
	Copied   int64
	Skipped  int64
	BytesIn  int64
	BytesOut int64
}

type Builder struct {
	opts     Options
	log      *slog.Logger
	pipeline *transformers.Pipeline
	fw       *filewriter.FileWriter
	stats    Stats
}

func New(opts Options) (*Builder, error) {
	if opts.InDir == "" || opts.OutDir == "" {
		return nil, errors.New("builder: input and output directories are required")
	}
	in, err := filepath.Abs(opts.InDir)
	if err != nil {
		return nil, err
	}
	out, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, err
	}
	if in == out {
		return nil, fmt.Errorf("builder: output directory %s is the input directory", opts.OutDir)
	}
	opts.InDir, opts.OutDir = in, out
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	fw, err := filewriter.New(opts.Compress)
	if err != nil {
		return nil, err
	}
	p := opts.Pipeline
	if p == nil {
		p = transformers.Default()
	}
	return &Builder{
		opts:     opts,
		log:      logging.OrNop(opts.Logger),
		pipeline: p,
		fw:       fw,
	}, nil
}

func (b *Builder) statePath() string {
	return filepath.Join(b.opts.OutDir, StateFileName)
}

// Stats returns the counters of the last Build.
func (b *Builder) Stats() Stats {
	return Stats{
		Minified: atomic.LoadInt64(&b.stats.Minified),
		Copied:   atomic.LoadInt64(&b.stats.Copied),
		Skipped:  atomic.LoadInt64(&b.stats.Skipped),
		BytesIn:  atomic.LoadInt64(&b.stats.BytesIn),
		BytesOut: atomic.LoadInt64(&b.stats.BytesOut),
	}
}

// Build processes every file under the input directory. Files unchanged
// since the previous build, whose outputs still exist, are skipped.
func (b *Builder) Build(ctx context.Context) (err error) {
	t := time.Now()
	b.stats = Stats{}

	state, err := hashcache.Open(b.statePath())
	if err != nil {
		b.log.Warn("discarding build state", "path", b.statePath(), "error", err)
		os.Remove(b.statePath())
		if state, err = hashcache.Open(b.statePath()); err != nil {
			return err
		}
	}
	defer func() {
		if serr := state.Save(); serr != nil && err == nil {
			err = fmt.Errorf("save build state: %w", serr)
		}
	}()

	work := func(job interface{}) error {
		rel := job.(string)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.process(rel, state); err != nil {
			state.Forget(rel)
			return fmt.Errorf("%s: %w", rel, err)
		}
		return nil
	}
	var pool *utils.Pool
	if b.opts.Workers > 0 {
		pool = utils.NewPoolSize(b.opts.Workers, work)
	} else {
		pool = utils.NewPool(work)
	}

	walkErr := filepath.WalkDir(b.opts.InDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == b.opts.OutDir {
				return filepath.SkipDir
			}
			return nil
		}
		if utils.IsIgnoredFile(path) || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(b.opts.InDir, path)
		if err != nil {
			return err
		}
		pool.Add(rel)
		return nil
	})
	poolErr := pool.Err()
	if walkErr != nil {
		return walkErr
	}
	if poolErr != nil {
		return poolErr
	}
	st := b.Stats()
	b.log.Info("build finished",
		"minified", st.Minified,
		"copied", st.Copied,
		"skipped", st.Skipped,
		"bytes_in", st.BytesIn,
		"bytes_out", st.BytesOut,
		"duration", time.Since(t))
	return nil
}

func (b *Builder) process(rel string, state *hashcache.Cache) error {
	inFile := filepath.Join(b.opts.InDir, rel)
	outFile := filepath.Join(b.opts.OutDir, rel)
	key := filepath.ToSlash(rel)

	if !utils.HasFileExt(rel, b.opts.Extensions) {
		fi, err := os.Stat(inFile)
		if err != nil {
			return err
		}
		stamp := fmt.Sprintf("copy\x00%d\x00%d", fi.Size(), fi.ModTime().UnixNano())
		if state.Seen(key, stamp) && b.outputsExist(outFile) {
			atomic.AddInt64(&b.stats.Skipped, 1)
			return nil
		}
		if err := b.fw.CopyFile(outFile, inFile); err != nil {
			return err
		}
		atomic.AddInt64(&b.stats.Copied, 1)
		b.log.Debug("copied", "file", rel)
		return nil
	}

	data, err := os.ReadFile(inFile)
	if err != nil {
		return err
	}
	in := string(data)
	if state.Seen(key, b.pipeline.Signature()+"\x00"+in) && b.outputsExist(outFile) {
		atomic.AddInt64(&b.stats.Skipped, 1)
		return nil
	}
	out := b.pipeline.Each(in, func(t transformers.Transformer, s string) string {
		start := time.Now()
		res := t.Transform(s)
		b.opts.Metrics.Transform(t.Name(), time.Since(start))
		return res
	})
	if err := b.fw.WriteString(outFile, out); err != nil {
		return err
	}
	atomic.AddInt64(&b.stats.Minified, 1)
	atomic.AddInt64(&b.stats.BytesIn, int64(len(in)))
	atomic.AddInt64(&b.stats.BytesOut, int64(len(out)))
	b.opts.Metrics.Document(metrics.OutcomeMinified)
	b.opts.Metrics.Bytes(len(in), len(out))
	b.log.Debug("minified", "file", rel, "bytes_in", len(in), "bytes_out", len(out))
	return nil
}

func (b *Builder) outputsExist(outFile string) bool {
	for _, name := range append([]string{outFile}, b.fw.Siblings(outFile)...) {
		if _, err := os.Stat(name); err != nil {
			return false
		}
	}
	return true
}

// Clean removes the output directory.
func (b *Builder) Clean() error {
	b.log.Info("cleaning", "dir", b.opts.OutDir)
	if strings.HasPrefix(b.opts.InDir+string(filepath.Separator), b.opts.OutDir+string(filepath.Separator)) {
		return fmt.Errorf("builder: refusing to remove %s which contains the input directory", b.opts.OutDir)
	}
	return os.RemoveAll(b.opts.OutDir)
}
