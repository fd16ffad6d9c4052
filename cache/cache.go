// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache stores minified documents keyed by pipeline and input.
package cache

import (
	"context"

	"github.com/dchest/minhtml/utils"
)

// Cache is a result cache. A miss is (_, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Key returns the cache key for body minified by the pipeline
// with the given signature.
func Key(signature, body string) string {
	return utils.HexHash(signature, body)
}
