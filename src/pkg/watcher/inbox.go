package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/q-controller/imaged/src/pkg/images"
	"github.com/q-controller/imaged/src/pkg/utils"
)

const (
	DoneDir   = "done"
	FailedDir = "failed"

	defaultSettle = 500 * time.Millisecond
)

type Ingester interface {
	ProcessUpload(ctx context.Context, file *images.Upload) *images.UploadResult
}

// Inbox ingests every file dropped into a directory and then moves it to
// done/ or failed/ next to it.
type Inbox struct {
	dir      string
	ingester Ingester
	settle   time.Duration
}

func NewInbox(dir string, ingester Ingester) (*Inbox, error) {
	if dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	return &Inbox{dir: dir, ingester: ingester, settle: defaultSettle}, nil
}

// Run blocks until ctx is cancelled.
func (in *Inbox) Run(ctx context.Context) error {
	for _, dir := range []string{in.dir, filepath.Join(in.dir, DoneDir), filepath.Join(in.dir, FailedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	watcher, watcherErr := fsnotify.NewWatcher()
	if watcherErr != nil {
		return watcherErr
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("Inbox: failed to close watcher", "error", err)
		}
	}()

	if addErr := watcher.Add(in.dir); addErr != nil {
		return addErr
	}

	ready := make(chan string, 64)
	pending := map[string]*time.Timer{}
	defer func() {
		for _, timer := range pending {
			timer.Stop()
		}
	}()

	schedule := func(path string) {
		if timer, ok := pending[path]; ok {
			timer.Reset(in.settle)
			return
		}
		pending[path] = time.AfterFunc(in.settle, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	// Files dropped while the service was down.
	entries, readErr := os.ReadDir(in.dir)
	if readErr != nil {
		return readErr
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && !skipped(entry.Name()) {
			schedule(filepath.Join(in.dir, entry.Name()))
		}
	}

	slog.Info("Watching inbox", "directory", in.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || skipped(filepath.Base(event.Name)) {
				continue
			}
			slog.Debug("Inbox: received event", "event", event.Op, "name", event.Name)
			schedule(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Warn("Inbox: watcher error", "error", err)
		case path := <-ready:
			delete(pending, path)
			in.ingest(ctx, path)
		}
	}
}

func skipped(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (in *Inbox) ingest(ctx context.Context, path string) {
	info, statErr := os.Stat(path)
	if statErr != nil || !info.Mode().IsRegular() {
		return
	}

	result := in.ingester.ProcessUpload(ctx, &images.Upload{
		FileName:    info.Name(),
		ContentType: images.ContentTypeForFile(info.Name()),
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	})

	target := FailedDir
	if result.Success {
		target = DoneDir
		slog.Info("Inbox: ingested file", "file", info.Name(), "image_id", result.UniqueID)
	} else {
		slog.Warn("Inbox: rejected file", "file", info.Name(), "reason", result.Error)
	}

	if _, moveErr := utils.MoveFile(path, filepath.Join(in.dir, target)); moveErr != nil {
		slog.Error("Inbox: failed to move file", "file", path, "error", moveErr)
	}
}
