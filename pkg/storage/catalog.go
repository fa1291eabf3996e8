package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sync"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
)

// Undo is the pre-image of a write, enough to put the file back.
type Undo struct {
	Name    string
	Prev    []byte
	Existed bool
}

// Catalog pairs a BlobStore with its Metadata. Every multi-step change
// (blob plus metadata) runs under one mutex so readers never observe half of
// it. Cross-node ordering for a name comes from the distributed lock.
type Catalog struct {
	blobs   BlobStore
	meta    *Metadata
	mu      sync.Mutex
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewCatalog creates a catalog over blobs. Call Rebuild to load metadata.
func NewCatalog(blobs BlobStore, logger logging.Logger, reg *metrics.Registry) *Catalog {
	return &Catalog{
		blobs:   blobs,
		meta:    NewMetadata(),
		logger:  logging.OrDefault(logger).With(logging.Component("storage")),
		metrics: reg,
	}
}

// Metadata exposes the name to size mapping.
func (c *Catalog) Metadata() *Metadata {
	return c.meta
}

// Rebuild replaces metadata with what the blob store holds.
func (c *Catalog) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos, err := c.blobs.List(ctx)
	if err != nil {
		return err
	}
	sizes := make(map[string]int64, len(infos))
	for _, info := range infos {
		sizes[info.Name] = info.Size
	}
	c.meta.Replace(sizes)
	c.observe()
	c.logger.Info("metadata rebuilt", logging.Count(len(sizes)))
	return nil
}

func (c *Catalog) observe() {
	if c.metrics != nil {
		files, total := c.meta.Totals()
		c.metrics.SetStorage(files, total)
	}
}

// prev reads the current content if the file is known. Caller holds c.mu.
func (c *Catalog) prev(ctx context.Context, name string) (Undo, error) {
	undo := Undo{Name: name}
	if _, ok := c.meta.Get(name); !ok {
		return undo, nil
	}
	data, err := c.blobs.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return undo, nil
	}
	if err != nil {
		return undo, err
	}
	undo.Prev = data
	undo.Existed = true
	return undo, nil
}

// Write stores data under name and returns the pre-image.
func (c *Catalog) Write(ctx context.Context, name string, data []byte) (Undo, error) {
	if err := CheckName(name); err != nil {
		return Undo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	undo, err := c.prev(ctx, name)
	if err != nil {
		return Undo{}, err
	}
	if err := c.blobs.Put(ctx, name, data); err != nil {
		return Undo{}, err
	}
	c.meta.Set(name, int64(len(data)))
	c.observe()
	return undo, nil
}

// Restore puts the file back to its pre-image.
func (c *Catalog) Restore(ctx context.Context, undo Undo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restoreLocked(ctx, undo)
}

// RestoreIf restores only while the file still holds expect, so a rollback
// never clobbers a later write. It reports whether it restored.
func (c *Catalog) RestoreIf(ctx context.Context, undo Undo, expect []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.blobs.Get(ctx, undo.Name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !bytes.Equal(current, expect) {
		return false, nil
	}
	return true, c.restoreLocked(ctx, undo)
}

func (c *Catalog) restoreLocked(ctx context.Context, undo Undo) error {
	if undo.Existed {
		if err := c.blobs.Put(ctx, undo.Name, undo.Prev); err != nil {
			return err
		}
		c.meta.Set(undo.Name, int64(len(undo.Prev)))
	} else {
		if err := c.blobs.Delete(ctx, undo.Name); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		c.meta.Remove(undo.Name)
	}
	c.observe()
	return nil
}

// Remove deletes the file and its metadata.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, known := c.meta.Get(name)
	err := c.blobs.Delete(ctx, name)
	if errors.Is(err, ErrNotFound) {
		c.meta.Remove(name)
		c.observe()
		if known {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	c.meta.Remove(name)
	c.observe()
	return nil
}

// Read returns the content of name.
func (c *Catalog) Read(ctx context.Context, name string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if _, ok := c.meta.Get(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c.blobs.Get(ctx, name)
}

// List returns the sorted file names.
func (c *Catalog) List() []string {
	return c.meta.Names()
}

// SystemHash digests the file set: names sorted, each name's bytes followed
// by its content, all into one SHA-256. Nodes holding the same files agree
// regardless of listing order.
func (c *Catalog) SystemHash(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := sha256.New()
	for _, name := range c.meta.Names() {
		h.Write([]byte(name))
		if err := c.hashContent(ctx, h, name); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Catalog) hashContent(ctx context.Context, h hash.Hash, name string) error {
	if s, ok := c.blobs.(Streamer); ok {
		_, err := s.Stream(ctx, name, h)
		return err
	}
	data, err := c.blobs.Get(ctx, name)
	if err != nil {
		return err
	}
	h.Write(data)
	return nil
}
