// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LayeredCache consults a local cache before a remote one.
//
// Remote hits are copied into the local layer so the next build is served
// locally. Put always writes the local layer and writes the remote layer
// only when Upload is set; consumers of a shared cache leave it off.
type LayeredCache struct {
	Local  Cache
	Remote Cache
	Upload bool

	Logger *zap.Logger
}

// NewLayeredCache creates a LayeredCache. remote may be nil.
func NewLayeredCache(local, remote Cache, upload bool, logger *zap.Logger) *LayeredCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LayeredCache{Local: local, Remote: remote, Upload: upload, Logger: logger}
}

func (c *LayeredCache) Has(ctx context.Context, hash TaskHash) (bool, error) {
	ok, err := c.Local.Has(ctx, hash)
	if err != nil || ok || c.Remote == nil {
		return ok, err
	}
	return c.Remote.Has(ctx, hash)
}

func (c *LayeredCache) Get(ctx context.Context, hash TaskHash) (*CacheEntry, error) {
	entry, err := c.Local.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if entry != nil || c.Remote == nil {
		return entry, nil
	}

	entry, err = c.Remote.Get(ctx, hash)
	if err != nil || entry == nil {
		return entry, err
	}

	// Back-fill is an optimisation; the entry is still usable if it fails.
	if err := c.Local.Put(ctx, entry); err != nil {
		c.Logger.Warn("failed to store remote entry locally",
			zap.String("hash", hash.String()), zap.Error(err))
	}
	return entry, nil
}

func (c *LayeredCache) Put(ctx context.Context, entry *CacheEntry) error {
	if err := c.Local.Put(ctx, entry); err != nil {
		return err
	}
	if c.Remote == nil || !c.Upload {
		return nil
	}
	if err := c.Remote.Put(ctx, entry); err != nil {
		return fmt.Errorf("uploading to remote cache: %w", err)
	}
	return nil
}
