package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/q-controller/imaged/src/pkg/images/metadata"
)

const manifestsPrefix = "manifests/"

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// MinioBackend implements Backend on an S3 compatible bucket using the same
// key layout as LocalFilesystemBackend. Manifests live under manifests/.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("Created bucket", "bucket", cfg.Bucket)
	}

	return &MinioBackend{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (b *MinioBackend) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (b *MinioBackend) StoreOriginal(ctx context.Context, data []byte, imageID string) error {
	return b.put(ctx, b.ResolveOriginalPath(imageID), data, "image/webp")
}

func (b *MinioBackend) StoreResizedSet(ctx context.Context, variants map[string][]byte, imageID string) error {
	for size, data := range variants {
		if err := b.put(ctx, b.ResolvePath(imageID, size), data, "image/webp"); err != nil {
			return err
		}
	}
	return nil
}

func (b *MinioBackend) StoreMetadata(ctx context.Context, record *metadata.ImageMetadata, imageID string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b.put(ctx, metadataKey(imageID), data, "application/json")
}

func (b *MinioBackend) Commit(ctx context.Context, manifest *Manifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return b.put(ctx, manifestsPrefix+manifest.ImageID+".json", data, "application/json")
}

func (b *MinioBackend) ResolvePath(imageID, size string) string {
	return path.Join(ResizedDir, imageID, size+ArtifactExt)
}

func (b *MinioBackend) ResolveOriginalPath(imageID string) string {
	return path.Join(OriginalsDir, imageID+ArtifactExt)
}

func metadataKey(imageID string) string {
	return path.Join(MetadataDir, imageID+".json")
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func (b *MinioBackend) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, location, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", location, err)
	}

	// GetObject is lazy; Stat surfaces a missing key.
	if _, statErr := obj.Stat(); statErr != nil {
		_ = obj.Close()
		if isNoSuchKey(statErr) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", location, statErr)
	}
	return obj, nil
}

func (b *MinioBackend) readAll(ctx context.Context, key string) (data []byte, retErr error) {
	reader, err := b.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()
	return io.ReadAll(reader)
}

func (b *MinioBackend) GetMetadata(ctx context.Context, imageID string) (*metadata.ImageMetadata, bool) {
	key := metadataKey(imageID)
	data, err := b.readAll(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Warn("Metadata object not found", "key", key)
		} else {
			slog.Error("Error reading metadata object", "key", key, "error", err)
		}
		return nil, false
	}
	return decodeMetadata(data, key)
}

func (b *MinioBackend) GetManifest(ctx context.Context, imageID string) (*Manifest, error) {
	data, err := b.readAll(ctx, manifestsPrefix+imageID+".json")
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, nil
}

func (b *MinioBackend) List(ctx context.Context) ([]string, error) {
	imageIDs := []string{}
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    manifestsPrefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		id := strings.TrimSuffix(strings.TrimPrefix(object.Key, manifestsPrefix), ".json")
		imageIDs = append(imageIDs, id)
	}
	return imageIDs, nil
}

func (b *MinioBackend) Remove(ctx context.Context, imageID string) error {
	keys := []string{
		manifestsPrefix + imageID + ".json",
		b.ResolveOriginalPath(imageID),
		metadataKey(imageID),
	}
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    path.Join(ResizedDir, imageID) + "/",
		Recursive: true,
	}) {
		if object.Err != nil {
			return object.Err
		}
		keys = append(keys, object.Key)
	}

	var errs []error
	for _, key := range keys {
		if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (b *MinioBackend) Close() error {
	return nil
}
