package images

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/q-controller/imaged/src/pkg/images/transcode"
)

const (
	// MaxFileSize is the largest accepted upload, in bytes.
	MaxFileSize = 2_000_000
	// MaxRequestSize caps the combined body of one multipart upload request.
	MaxRequestSize = 20_000_000
)

var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

var extensionContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// validateUpload returns the user facing reason file is rejected, or "".
func validateUpload(file *Upload) string {
	if file == nil {
		return "No file was uploaded"
	}
	if file.Size <= 0 {
		return "Uploaded file is empty"
	}
	if file.Size > MaxFileSize {
		return fmt.Sprintf("File size exceeds %dMB limit", MaxFileSize/1_000_000)
	}
	if !IsAllowedExtension(file.FileName) {
		return fmt.Sprintf("Invalid file format. Only %s are allowed", strings.Join(allowedExtensions, ", "))
	}
	if !IsAllowedContentType(file.ContentType) {
		return "Invalid image content type"
	}
	return ""
}

// IsAllowedExtension reports whether fileName ends in an accepted image extension, in any case.
func IsAllowedExtension(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// IsAllowedContentType reports whether the declared content type is an accepted image type.
func IsAllowedContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	_, ok := allowedContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// ContentTypeForFile guesses the declared content type from the extension,
// for uploads that do not come with one (CLI, inbox).
func ContentTypeForFile(fileName string) string {
	return extensionContentTypes[strings.ToLower(filepath.Ext(fileName))]
}

// IsValidSize accepts the named breakpoints (any case) and finite numbers.
func IsValidSize(size string) bool {
	if transcode.IsTarget(strings.ToLower(size)) {
		return true
	}
	value, err := strconv.ParseFloat(size, 64)
	return err == nil && !math.IsInf(value, 0) && !math.IsNaN(value)
}

// normalizeSize lowercases named breakpoints; numeric sizes pass through.
func normalizeSize(size string) string {
	if lower := strings.ToLower(size); transcode.IsTarget(lower) {
		return lower
	}
	return size
}
