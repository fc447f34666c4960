package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/singleflight"
)

var downloadGroup singleflight.Group

// ErrTooLarge is returned when a download exceeds the caller's limit.
var ErrTooLarge = errors.New("download exceeds size limit")

func download(ctx context.Context, url string, limit int64) (result []byte, retErr error) {
	slog.Info("Starting file download", "url", url)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", reqErr)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			if retErr == nil {
				retErr = closeErr
			} else {
				retErr = errors.Join(retErr, closeErr)
			}
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, resp.Status)
	}

	size, err := strconv.Atoi(resp.Header.Get("Content-Length"))
	if err != nil {
		size = -1 // Unknown size
	}

	progress := &progressWriter{total: size}
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(resp.Body, limit+1), progress))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}

	slog.Info("File downloaded successfully", "url", url, "bytes", len(data))
	return data, nil
}

// DownloadFile fetches url into memory, reading at most limit bytes.
// Concurrent calls for the same url share a single request.
func DownloadFile(ctx context.Context, url string, limit int64) ([]byte, error) {
	value, err, _ := downloadGroup.Do(url, func() (interface{}, error) {
		return download(ctx, url, limit)
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

type progressWriter struct {
	total   int
	written int
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += n
	if pw.total > 0 {
		slog.Debug("Download progress", "progress", fmt.Sprintf("%.2f%%", float64(pw.written)/float64(pw.total)*100))
	} else {
		slog.Debug("Download progress", "bytes", pw.written)
	}
	return n, nil
}
