package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/q-controller/imaged/src/pkg/images/metadata"
)

// CachedBackend keeps recently read metadata records in memory. Records are
// immutable per identifier, so only Remove has to evict.
type CachedBackend struct {
	Backend
	records *lru.Cache[string, metadata.ImageMetadata]
}

func NewCachedBackend(backend Backend, size int) (*CachedBackend, error) {
	records, err := lru.New[string, metadata.ImageMetadata](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &CachedBackend{
		Backend: backend,
		records: records,
	}, nil
}

func (c *CachedBackend) StoreMetadata(ctx context.Context, record *metadata.ImageMetadata, imageID string) error {
	if err := c.Backend.StoreMetadata(ctx, record, imageID); err != nil {
		c.records.Remove(imageID)
		return err
	}
	if record != nil {
		c.records.Add(imageID, clone(record))
	}
	return nil
}

func (c *CachedBackend) GetMetadata(ctx context.Context, imageID string) (*metadata.ImageMetadata, bool) {
	if cached, ok := c.records.Get(imageID); ok {
		record := clone(&cached)
		return &record, true
	}

	record, ok := c.Backend.GetMetadata(ctx, imageID)
	if ok {
		c.records.Add(imageID, clone(record))
	}
	return record, ok
}

func (c *CachedBackend) Remove(ctx context.Context, imageID string) error {
	c.records.Remove(imageID)
	return c.Backend.Remove(ctx, imageID)
}

// clone copies record so callers never share the cached GeoLocation pointer.
func clone(record *metadata.ImageMetadata) metadata.ImageMetadata {
	out := *record
	if record.GeoLocation != nil {
		location := *record.GeoLocation
		out.GeoLocation = &location
	}
	return out
}
