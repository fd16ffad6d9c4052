// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hashcache tells whether the given content at the path was already seen by it.
package hashcache

import (
	"crypto/md5"
	"encoding/gob"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	hashSize          = md5.Size
	fileFormatVersion = 1

	MaxPathLen = 4096
)

// ErrVersion is returned by Open when the state file was written by an
// incompatible version.
var ErrVersion = errors.New("hashcache: unsupported state file version")

type state struct {
	Version int
	Hashes  map[string][hashSize]byte
}

type Cache struct {
	sync.Mutex
	filename string
	m        map[string][hashSize]byte
	h        hash.Hash
	dirty    bool
}

// Open loads the cache from filename. A missing file gives an empty
// cache which Save will create. An empty filename gives an in-memory
// cache for which Save does nothing.
func Open(filename string) (*Cache, error) {
	c := &Cache{
		filename: filename,
		m:        make(map[string][hashSize]byte),
		h:        md5.New(),
	}
	if filename == "" {
		return c, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()
	var st state
	if err := gob.NewDecoder(f).Decode(&st); err != nil {
		return nil, fmt.Errorf("hashcache: decode %s: %w", filename, err)
	}
	if st.Version != fileFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, st.Version)
	}
	if st.Hashes != nil {
		c.m = st.Hashes
	}
	return c, nil
}

// contentHash returns hash of content. Cache must be locked.
func (c *Cache) contentHash(content string) (sum [hashSize]byte) {
	c.h.Reset()
	c.h.Write([]byte(content))
	c.h.Sum(sum[:0])
	return
}

// Seen sets content hash for the given path to a new value.
// It returns true if the content was already cached and had the same hash.
func (c *Cache) Seen(path string, content string) bool {
	if len(path) > MaxPathLen {
		return false
	}
	c.Lock()
	defer c.Unlock()
	origHash, ok := c.m[path]
	newHash := c.contentHash(content)
	if !ok || origHash != newHash {
		c.m[path] = newHash
		c.dirty = true
		return false
	}
	return true
}

// Forget removes path from the cache, so that the next Seen for it
// returns false.
func (c *Cache) Forget(path string) {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.m[path]; ok {
		delete(c.m, path)
		c.dirty = true
	}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.m)
}

// Save writes the cache to the file it was opened from, if it changed.
func (c *Cache) Save() (err error) {
	c.Lock()
	defer c.Unlock()
	if c.filename == "" || !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.filename), 0755); err != nil {
		return err
	}
	tmp := c.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			// Delete file.
			os.Remove(tmp)
		}
	}()
	err = gob.NewEncoder(f).Encode(state{Version: fileFormatVersion, Hashes: c.m})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return
	}
	if err = os.Rename(tmp, c.filename); err != nil {
		return
	}
	c.dirty = false
	return nil
}
