package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/q-controller/imaged/src/pkg/images/metadata"
)

const (
	OriginalsDir = "originals"
	ResizedDir   = "resized"
	MetadataDir  = "metadata"

	// ArtifactExt is appended to every stored image key.
	ArtifactExt = ".webp"
)

var ErrNotFound = errors.New("artifact not found")

// Backend persists the artifact set of an ingestion. Every key is scoped by
// the image identifier, so writes for distinct identifiers never contend.
type Backend interface {
	StoreOriginal(ctx context.Context, data []byte, imageID string) error
	StoreResizedSet(ctx context.Context, variants map[string][]byte, imageID string) error
	StoreMetadata(ctx context.Context, record *metadata.ImageMetadata, imageID string) error
	// Commit records that every artifact of the manifest's image was written.
	Commit(ctx context.Context, manifest *Manifest) error

	// ResolvePath is a pure function of its arguments; it does not check
	// that anything exists at the returned location.
	ResolvePath(imageID, size string) string
	ResolveOriginalPath(imageID string) string
	// Open returns the bytes at a location from ResolvePath, or ErrNotFound.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	// GetMetadata reports false when the record is missing or unreadable.
	GetMetadata(ctx context.Context, imageID string) (*metadata.ImageMetadata, bool)
	GetManifest(ctx context.Context, imageID string) (*Manifest, error)

	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, imageID string) error
	Close() error
}

// Manifest marks an identifier whose artifact set was completely written.
type Manifest struct {
	ImageID     string    `json:"image_id"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
	Variants    []string  `json:"variants"`
	CompletedAt time.Time `json:"completed_at"`
}
