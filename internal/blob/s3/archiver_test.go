package s3blob

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string]string{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects[path] = string(b)
	w.types[path] = contentType
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "multipart")
}

func (w *memWriter) Exists(_ context.Context, path string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.objects[path]
	return ok, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestArchiverKeyUsesDateInFileName(t *testing.T) {
	a := NewArchiver(newMemWriter(), nil, "tickerwatch/records", discard())
	mod := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "tickerwatch/records/2026/03/tickers-2026-03-14.csv",
		a.Key("/data/tickers-2026-03-14.csv", mod))
	assert.Equal(t, "tickerwatch/records/2030/01/misc.csv",
		a.Key("/data/misc.csv", mod))
}

func TestArchiverUpload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tickers-2026-03-14.csv", "observed_at,symbol\n")
	w := newMemWriter()
	a := NewArchiver(w, nil, "records", discard())

	require.NoError(t, a.Upload(context.Background(), p))

	assert.Equal(t, "observed_at,symbol\n", w.objects["records/2026/03/tickers-2026-03-14.csv"])
	assert.Equal(t, csvContentType, w.types["records/2026/03/tickers-2026-03-14.csv"])
}

func TestArchiverUploadMissingFile(t *testing.T) {
	a := NewArchiver(newMemWriter(), nil, "records", discard())
	assert.Error(t, a.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.csv")))
}

func TestArchiverSweepSkipsCurrentAndArchived(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tickers-2026-03-12.csv", "a")
	writeFile(t, dir, "tickers-2026-03-13.csv", "b")
	current := writeFile(t, dir, "tickers-2026-03-14.csv", "c")

	w := newMemWriter()
	w.objects["records/2026/03/tickers-2026-03-12.csv"] = "a"
	a := NewArchiver(w, w, "records", discard())

	n, err := a.Sweep(context.Background(), dir, "tickers-*.csv", current)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, w.objects, "records/2026/03/tickers-2026-03-13.csv")
	assert.NotContains(t, w.objects, "records/2026/03/tickers-2026-03-14.csv")
}

func TestArchiverRunUploadsQueuedFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tickers-2026-03-13.csv", "rows")
	w := newMemWriter()
	a := NewArchiver(w, nil, "records", discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()

	a.Enqueue(p)
	assert.Eventually(t, func() bool {
		ok, _ := w.Exists(context.Background(), "records/2026/03/tickers-2026-03-13.csv")
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "https://minio.local", normaliseEndpoint("minio.local", true))
}
