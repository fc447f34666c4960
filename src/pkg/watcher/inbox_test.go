package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/q-controller/imaged/src/pkg/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIngester struct {
	mu   sync.Mutex
	seen map[string]string
}

func (r *recordingIngester) ProcessUpload(ctx context.Context, file *images.Upload) *images.UploadResult {
	reader, err := file.Open()
	if err != nil {
		return &images.UploadResult{OriginalFileName: file.FileName, Error: err.Error()}
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)

	r.mu.Lock()
	r.seen[file.FileName] = file.ContentType + ":" + string(data)
	r.mu.Unlock()

	if strings.HasPrefix(file.FileName, "good") {
		return &images.UploadResult{OriginalFileName: file.FileName, UniqueID: "id", Success: true}
	}
	return &images.UploadResult{OriginalFileName: file.FileName, Error: "Invalid image content type"}
}

func (r *recordingIngester) Seen(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.seen[name]
	return v, ok
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewInboxValidates(t *testing.T) {
	_, err := NewInbox("", &recordingIngester{})
	assert.Error(t, err)
	_, err = NewInbox(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestInboxMovesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good-early.png"), []byte("early"), 0644))

	ingester := &recordingIngester{seen: map[string]string{}}
	inbox, err := NewInbox(dir, ingester)
	require.NoError(t, err)
	inbox.settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, DoneDir, "good-early.png"))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "good-late.jpg"), []byte("late"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.gif"), []byte("gif"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial.png"), []byte("tmp"), 0644))

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, DoneDir, "good-late.jpg")) &&
			exists(filepath.Join(dir, FailedDir, "bad.gif"))
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, exists(filepath.Join(dir, "good-late.jpg")))
	assert.True(t, exists(filepath.Join(dir, ".partial.png")))

	seen, ok := ingester.Seen("good-late.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg:late", seen)
	seen, ok = ingester.Seen("bad.gif")
	require.True(t, ok)
	assert.Equal(t, ":gif", seen)
}
