// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries is the size of a Memory cache created with zero.
const DefaultMaxEntries = 1024

// Memory is a bounded in-process LRU cache.
type Memory struct {
	lru *lru.Cache[string, string]
}

// NewMemory returns an LRU cache holding at most maxEntries values.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	l, err := lru.New[string, string](maxEntries)
	if err != nil {
		panic(err.Error()) // only for non-positive sizes
	}
	return &Memory{lru: l}
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *Memory) Set(_ context.Context, key, value string) error {
	c.lru.Add(key, value)
	return nil
}

// Len returns the number of cached values.
func (c *Memory) Len() int {
	return c.lru.Len()
}
