package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/q-controller/imaged/src/pkg/images/metadata"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const genericError = "An error occurred while processing your request"

// ImageService is what the HTTP boundary needs from the orchestrator.
type ImageService interface {
	ProcessUpload(ctx context.Context, file *Upload) *UploadResult
	OpenResized(ctx context.Context, imageID, size string) (io.ReadCloser, error)
	OpenOriginal(ctx context.Context, imageID string) (io.ReadCloser, error)
	GetImageMetadata(ctx context.Context, imageID string) (*metadata.ImageMetadata, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, imageID string) error
}

type Handler struct {
	service ImageService
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)
	if parseErr := r.ParseMultipartForm(MaxRequestSize); parseErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(parseErr, &tooLarge) {
			http.Error(w, fmt.Sprintf("request body exceeds %d bytes", MaxRequestSize), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("failed to parse form: %s", parseErr.Error()), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Failed to remove multipart temp files", "error", err)
		}
	}()

	files := r.MultipartForm.File["Files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["files"]
	}
	if len(files) == 0 {
		http.Error(w, "No images provided", http.StatusBadRequest)
		return
	}

	results := make([]*UploadResult, 0, len(files))
	for _, header := range files {
		results = append(results, h.service.ProcessUpload(r.Context(), UploadFromMultipart(header)))
	}

	writeJSON(w, results)
}

// GetImage serves /images/{imageId}/{size}; the literal sizes "metadata" and
// "original" select the metadata record and the canonical original.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	imageID := pathParams["imageId"]
	size := pathParams["size"]

	var (
		reader io.ReadCloser
		err    error
	)
	switch size {
	case "metadata":
		h.GetMetadata(w, r, pathParams)
		return
	case "original":
		reader, err = h.service.OpenOriginal(r.Context(), imageID)
	default:
		if !IsValidSize(size) {
			http.Error(w, "Invalid size parameter. Must be phone, tablet, desktop or numeric value", http.StatusBadRequest)
			return
		}
		reader, err = h.service.OpenResized(r.Context(), imageID, size)
	}
	if err != nil {
		writeError(w, err, "Error retrieving image", "image_id", imageID, "size", size)
		return
	}

	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			slog.Warn("Failed to close image", "image_id", imageID, "error", closeErr)
		}
	}()

	w.Header().Set("Content-Type", "image/webp")
	if _, copyErr := io.Copy(w, reader); copyErr != nil {
		slog.Warn("Failed to write image", "image_id", imageID, "size", size, "error", copyErr)
	}
}

func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	imageID := pathParams["imageId"]
	record, err := h.service.GetImageMetadata(r.Context(), imageID)
	if err != nil {
		writeError(w, err, "Error retrieving metadata", "image_id", imageID)
		return
	}
	if record == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, record)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	ids, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err, "Failed to list images")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, map[string][]string{"images": ids})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	imageID, ok := pathParams["imageId"]
	if !ok || imageID == "" {
		http.Error(w, "Missing imageId parameter", http.StatusBadRequest)
		return
	}

	if err := h.service.Remove(r.Context(), imageID); err != nil {
		writeError(w, err, "Failed to remove image", "image_id", imageID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Register adds the image routes under prefix to mux.
func (h *Handler) Register(mux *runtime.ServeMux, prefix string) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, prefix, h.Post},
		{http.MethodGet, prefix, h.List},
		{http.MethodGet, prefix + "/{imageId}/{size}", h.GetImage},
		{http.MethodDelete, prefix + "/{imageId}", h.Delete},
	}
	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.pattern, recoverer(route.handler)); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", route.method, route.pattern, err)
		}
	}
	return nil
}

func CreateHandler(service ImageService) (*Handler, error) {
	if service == nil {
		return nil, errors.New("image service is required")
	}
	return &Handler{
		service: service,
	}, nil
}

func recoverer(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Unexpected failure", "method", r.Method, "path", r.URL.Path, "panic", rec)
				http.Error(w, genericError, http.StatusInternalServerError)
			}
		}()
		next(w, r, pathParams)
	}
}

// writeError maps status codes to HTTP. Only invalid argument and not found
// messages reach the client.
func writeError(w http.ResponseWriter, err error, logMsg string, args ...any) {
	code := status.Code(err)
	switch code {
	case codes.InvalidArgument, codes.NotFound:
		http.Error(w, status.Convert(err).Message(), runtime.HTTPStatusFromCode(code))
	default:
		slog.Error(logMsg, append(args, "error", err)...)
		http.Error(w, genericError, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}
