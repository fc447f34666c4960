package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/q-controller/imaged/src/pkg/images/metadata"
	"github.com/q-controller/imaged/src/pkg/utils"
)

// LocalFilesystemBackend implements Backend on a local directory tree:
//
//	<root>/originals/<id>.webp
//	<root>/resized/<id>/<size>.webp
//	<root>/metadata/<id>.json
//	<root>/index            badger database of committed manifests
type LocalFilesystemBackend struct {
	root string
	db   *badger.DB
}

func NewLocalFilesystemBackend(root string) (*LocalFilesystemBackend, error) {
	absRoot, absErr := filepath.Abs(root)
	if absErr != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", absErr)
	}

	for _, dir := range []string{OriginalsDir, ResizedDir, MetadataDir} {
		path := filepath.Join(absRoot, dir)
		if _, statErr := os.Stat(path); statErr == nil {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		slog.Info("Created directory", "path", path)
	}

	opts := badger.DefaultOptions(filepath.Join(absRoot, "index"))
	opts.Logger = nil // Disable badger logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &LocalFilesystemBackend{
		root: absRoot,
		db:   db,
	}, nil
}

func (b *LocalFilesystemBackend) StoreOriginal(ctx context.Context, data []byte, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(b.ResolveOriginalPath(imageID), data); err != nil {
		return fmt.Errorf("failed to write original: %w", err)
	}
	return nil
}

func (b *LocalFilesystemBackend) StoreResizedSet(ctx context.Context, variants map[string][]byte, imageID string) error {
	dir := filepath.Join(b.root, ResizedDir, imageID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create variant directory: %w", err)
	}

	for size, data := range variants {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := utils.WriteFileAtomic(b.ResolvePath(imageID, size), data); err != nil {
			return fmt.Errorf("failed to write %s variant: %w", size, err)
		}
	}
	return nil
}

func (b *LocalFilesystemBackend) StoreMetadata(ctx context.Context, record *metadata.ImageMetadata, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := utils.WriteFileAtomic(b.metadataPath(imageID), data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (b *LocalFilesystemBackend) Commit(ctx context.Context, manifest *Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(manifest)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest: %w", err)
		}
		return txn.Set([]byte(manifest.ImageID), data)
	})
}

func (b *LocalFilesystemBackend) ResolvePath(imageID, size string) string {
	return filepath.Join(b.root, ResizedDir, imageID, size+ArtifactExt)
}

func (b *LocalFilesystemBackend) ResolveOriginalPath(imageID string) string {
	return filepath.Join(b.root, OriginalsDir, imageID+ArtifactExt)
}

func (b *LocalFilesystemBackend) metadataPath(imageID string) string {
	return filepath.Join(b.root, MetadataDir, imageID+".json")
}

// within reports whether path stays inside the storage root.
func (b *LocalFilesystemBackend) within(path string) bool {
	rel, err := filepath.Rel(b.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (b *LocalFilesystemBackend) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.within(location) {
		return nil, ErrNotFound
	}

	file, err := os.Open(filepath.Clean(location))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, statErr := file.Stat()
	if statErr != nil || info.IsDir() {
		_ = file.Close()
		return nil, ErrNotFound
	}
	return file, nil
}

func (b *LocalFilesystemBackend) GetMetadata(ctx context.Context, imageID string) (*metadata.ImageMetadata, bool) {
	path := b.metadataPath(imageID)
	slog.Debug("Checking metadata path", "path", path)

	if !b.within(path) {
		slog.Warn("Metadata path escapes storage root", "image_id", imageID)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Metadata file not found", "path", path)
		} else {
			slog.Error("Error reading metadata file", "path", path, "error", err)
		}
		return nil, false
	}

	return decodeMetadata(data, path)
}

func (b *LocalFilesystemBackend) GetManifest(ctx context.Context, imageID string) (*Manifest, error) {
	var manifest Manifest
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(imageID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &manifest)
		})
	})
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (b *LocalFilesystemBackend) List(ctx context.Context) ([]string, error) {
	imageIDs := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Only need keys
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			imageIDs = append(imageIDs, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return imageIDs, err
}

// Remove deletes every artifact of imageID. Unknown identifiers are not an error.
func (b *LocalFilesystemBackend) Remove(ctx context.Context, imageID string) error {
	var errs []error

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(imageID))
	}); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove manifest: %w", err))
	}

	for _, path := range []string{b.ResolveOriginalPath(imageID), b.metadataPath(imageID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove file: %w", err))
		}
	}

	resized := filepath.Join(b.root, ResizedDir, imageID)
	if filepath.Dir(resized) == filepath.Join(b.root, ResizedDir) {
		if err := os.RemoveAll(resized); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove variants: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Close closes the database connection
func (b *LocalFilesystemBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func decodeMetadata(data []byte, location string) (*metadata.ImageMetadata, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		slog.Warn("Empty metadata file found", "path", location)
		return nil, false
	}

	var record *metadata.ImageMetadata
	if err := json.Unmarshal(data, &record); err != nil {
		slog.Error("Failed to deserialize metadata", "path", location, "error", err)
		return nil, false
	}
	if record == nil {
		slog.Error("Failed to deserialize metadata", "path", location)
		return nil, false
	}
	return record, true
}
