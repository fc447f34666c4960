package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/q-controller/imaged/src/pkg/images/metadata"
	"github.com/q-controller/imaged/src/pkg/images/storage"
	"github.com/q-controller/imaged/src/pkg/images/transcode"
	"github.com/q-controller/imaged/src/pkg/utils"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	msgProcessingFailed = "Error processing image"
	msgInvalidResult    = "Error processing image: Invalid processing result"
)

var errInvalidResult = errors.New("invalid processing result")

// Upload is one file of an upload request.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

func UploadFromMultipart(header *multipart.FileHeader) *Upload {
	return &Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

// UploadResult is reported for every uploaded file, successful or not.
type UploadResult struct {
	OriginalFileName string `json:"originalFileName"`
	UniqueID         string `json:"uniqueId"`
	Success          bool   `json:"success"`
	Error            string `json:"error"`
}

type Transcoder interface {
	Process(ctx context.Context, r io.Reader, id string) (*transcode.Result, error)
}

// Publisher receives ingestion lifecycle events.
type Publisher interface {
	ImageIngested(imageID string, variants []string) error
	ImageRemoved(imageID string) error
	PublishError(message, resource string) error
}

// Recorder receives ingestion and retrieval measurements.
type Recorder interface {
	ObserveIngestion(outcome string, elapsed time.Duration)
	ObserveRetrieval(kind, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveIngestion(string, time.Duration) {}
func (noopRecorder) ObserveRetrieval(string, string)        {}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// Service validates uploads, drives the transcoder and persists every
// produced artifact. It holds no mutable state and is safe for concurrent use.
type Service struct {
	transcoder Transcoder
	store      storage.Backend
	publisher  Publisher
	recorder   Recorder
	newID      func() string
}

func NewService(transcoder Transcoder, store storage.Backend, opts ...Option) (*Service, error) {
	if transcoder == nil {
		return nil, errors.New("transcoder is required")
	}
	if store == nil {
		return nil, errors.New("storage backend is required")
	}

	s := &Service{
		transcoder: transcoder,
		store:      store,
		recorder:   noopRecorder{},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessUpload never fails past its return value: every problem is reported
// through UploadResult.Error and internal detail is only logged.
func (s *Service) ProcessUpload(ctx context.Context, file *Upload) *UploadResult {
	start := time.Now()
	result := &UploadResult{}
	if file != nil {
		result.OriginalFileName = file.FileName
	}

	if reason := validateUpload(file); reason != "" {
		result.Error = reason
		s.recorder.ObserveIngestion("rejected", time.Since(start))
		return result
	}

	result.UniqueID = s.newID()
	variants, err := s.ingest(ctx, file, result.UniqueID)
	if err != nil {
		slog.Error("Error processing image", "file", file.FileName, "image_id", result.UniqueID, "error", err)
		result.Error = msgProcessingFailed
		if errors.Is(err, errInvalidResult) {
			result.Error = msgInvalidResult
		}
		s.recorder.ObserveIngestion("failed", time.Since(start))
		s.publish(func(p Publisher) error { return p.PublishError(result.Error, result.UniqueID) })
		return result
	}

	result.Success = true
	s.recorder.ObserveIngestion("success", time.Since(start))
	s.publish(func(p Publisher) error { return p.ImageIngested(result.UniqueID, variants) })
	slog.Info("Image ingested", "file", file.FileName, "image_id", result.UniqueID)
	return result
}

func (s *Service) ingest(ctx context.Context, file *Upload, imageID string) ([]string, error) {
	if file.Open == nil {
		return nil, errors.New("upload has no content")
	}
	reader, openErr := file.Open()
	if openErr != nil {
		return nil, fmt.Errorf("failed to open upload: %w", openErr)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			slog.Warn("Failed to close upload", "error", closeErr)
		}
	}()

	data, readErr := io.ReadAll(io.LimitReader(reader, MaxFileSize+1))
	if readErr != nil {
		return nil, fmt.Errorf("failed to read upload: %w", readErr)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("upload is larger than its declared size %d", file.Size)
	}

	result, processErr := s.transcoder.Process(ctx, bytes.NewReader(data), imageID)
	if processErr != nil {
		return nil, processErr
	}
	if result == nil || len(result.Original) == 0 || len(result.Variants) == 0 {
		return nil, errInvalidResult
	}

	variants := sortedVariants(result)
	if persistErr := s.persist(ctx, result, variants, imageID); persistErr != nil {
		// Only a committed manifest marks an identifier complete; drop the rest.
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), imageID); rmErr != nil {
			slog.Error("Failed to roll back partial ingestion", "image_id", imageID, "error", rmErr)
		}
		return nil, persistErr
	}
	return variants, nil
}

func sortedVariants(result *transcode.Result) []string {
	variants := make([]string, 0, len(result.Variants))
	for size := range result.Variants {
		variants = append(variants, size)
	}
	sort.Strings(variants)
	return variants
}

func (s *Service) persist(ctx context.Context, result *transcode.Result, variants []string, imageID string) error {
	if err := s.store.StoreOriginal(ctx, result.Original, imageID); err != nil {
		return fmt.Errorf("failed to store original: %w", err)
	}
	if err := s.store.StoreResizedSet(ctx, result.Variants, imageID); err != nil {
		return fmt.Errorf("failed to store variants: %w", err)
	}

	record := result.Metadata
	if record == nil {
		record = &metadata.ImageMetadata{}
	}
	if err := s.store.StoreMetadata(ctx, record, imageID); err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}

	return s.store.Commit(ctx, &storage.Manifest{
		ImageID:     imageID,
		Hash:        utils.HashBytes(result.Original),
		Size:        int64(len(result.Original)),
		Variants:    variants,
		CompletedAt: time.Now().UTC(),
	})
}

func (s *Service) publish(send func(Publisher) error) {
	if s.publisher == nil {
		return
	}
	if err := send(s.publisher); err != nil {
		slog.Warn("Failed to publish event", "error", err)
	}
}

func checkImageID(imageID string) error {
	if imageID == "" {
		return status.Error(codes.InvalidArgument, "Image ID cannot be null or empty")
	}
	return nil
}

// known reports whether imageID could have been issued by this service.
func known(imageID string) bool {
	_, err := uuid.Parse(imageID)
	return err == nil
}

// GetResizedImagePath resolves where the variant would be stored without
// checking that it exists.
func (s *Service) GetResizedImagePath(imageID, size string) (string, error) {
	if err := checkImageID(imageID); err != nil {
		return "", err
	}
	if size == "" {
		return "", status.Error(codes.InvalidArgument, "Size cannot be null or empty")
	}
	return s.store.ResolvePath(imageID, normalizeSize(size)), nil
}

// OpenResized returns the stored bytes of one variant.
func (s *Service) OpenResized(ctx context.Context, imageID, size string) (io.ReadCloser, error) {
	location, err := s.GetResizedImagePath(imageID, size)
	if err != nil {
		return nil, err
	}
	if !IsValidSize(size) {
		return nil, status.Error(codes.InvalidArgument, "Invalid size parameter. Must be phone, tablet, desktop or numeric value")
	}
	return s.open(ctx, "variant", imageID, location)
}

// OpenOriginal returns the stored canonical original.
func (s *Service) OpenOriginal(ctx context.Context, imageID string) (io.ReadCloser, error) {
	if err := checkImageID(imageID); err != nil {
		return nil, err
	}
	return s.open(ctx, "original", imageID, s.store.ResolveOriginalPath(imageID))
}

func (s *Service) open(ctx context.Context, kind, imageID, location string) (io.ReadCloser, error) {
	if !known(imageID) {
		s.recorder.ObserveRetrieval(kind, "not_found")
		return nil, status.Errorf(codes.NotFound, "image not found: %s", imageID)
	}

	reader, err := s.store.Open(ctx, location)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recorder.ObserveRetrieval(kind, "not_found")
			return nil, status.Errorf(codes.NotFound, "image not found: %s", imageID)
		}
		s.recorder.ObserveRetrieval(kind, "error")
		return nil, fmt.Errorf("failed to open %s of %s: %w", kind, imageID, err)
	}
	s.recorder.ObserveRetrieval(kind, "success")
	return reader, nil
}

// GetImageMetadata returns nil without an error when the record is absent.
func (s *Service) GetImageMetadata(ctx context.Context, imageID string) (*metadata.ImageMetadata, error) {
	if err := checkImageID(imageID); err != nil {
		return nil, err
	}
	if !known(imageID) {
		s.recorder.ObserveRetrieval("metadata", "not_found")
		return nil, nil
	}

	record, ok := s.store.GetMetadata(ctx, imageID)
	if !ok {
		s.recorder.ObserveRetrieval("metadata", "not_found")
		return nil, nil
	}
	s.recorder.ObserveRetrieval("metadata", "success")
	return record, nil
}

// List returns the identifiers of every completely ingested image.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// Remove deletes every artifact of imageID. Unknown identifiers are ignored.
func (s *Service) Remove(ctx context.Context, imageID string) error {
	if err := checkImageID(imageID); err != nil {
		return err
	}
	if !known(imageID) {
		return nil
	}
	if err := s.store.Remove(ctx, imageID); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", imageID, err)
	}
	s.publish(func(p Publisher) error { return p.ImageRemoved(imageID) })
	return nil
}
