package acquire

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadAndExtract(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"clips/dock-01.mp4": "first",
		"clips/dock-02.mov": "second",
		"README.txt":        "notes",
	})
	srv := serve(t, http.StatusOK, archive)
	dir := t.TempDir()

	a := NewAcquirer(discardLogger(), HTTPFetcher{}, nil)
	require.NoError(t, a.DownloadAndExtract(context.Background(), srv.URL+"/videos.zip", dir))

	got, err := os.ReadFile(filepath.Join(dir, "clips", "dock-02.mov"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.FileExists(t, filepath.Join(dir, "clips", "dock-01.mp4"))
	assert.FileExists(t, filepath.Join(dir, "README.txt"))

	// The downloaded archive stays next to what it contained.
	kept, err := os.ReadFile(filepath.Join(dir, ArchiveName))
	require.NoError(t, err)
	assert.Equal(t, archive, kept)
}

func TestDownloadAndExtract_HTTPError(t *testing.T) {
	srv := serve(t, http.StatusNotFound, []byte("missing"))
	dir := t.TempDir()

	a := NewAcquirer(discardLogger(), HTTPFetcher{}, nil)
	err := a.DownloadAndExtract(context.Background(), srv.URL+"/videos.zip", dir)
	assert.Error(t, err)
}

func TestDownloadAndExtract_CorruptArchive(t *testing.T) {
	srv := serve(t, http.StatusOK, []byte("this is not a zip file"))
	dir := t.TempDir()

	a := NewAcquirer(discardLogger(), HTTPFetcher{}, nil)
	err := a.DownloadAndExtract(context.Background(), srv.URL+"/videos.zip", dir)
	assert.Error(t, err)
}

func TestDownloadAndExtract_UnsupportedScheme(t *testing.T) {
	a := NewAcquirer(discardLogger(), HTTPFetcher{}, nil)

	err := a.DownloadAndExtract(context.Background(), "ftp://example.com/videos.zip", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	err = a.DownloadAndExtract(context.Background(), "s3://bucket/videos.zip", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

type recordingFetcher struct {
	urls []string
	body []byte
}

func (f *recordingFetcher) Fetch(ctx context.Context, rawURL, dst string) error {
	f.urls = append(f.urls, rawURL)
	return os.WriteFile(dst, f.body, 0644)
}

func TestDownloadAndExtract_ObjectStorage(t *testing.T) {
	objects := &recordingFetcher{body: buildZip(t, map[string]string{"a.mp4": "x"})}
	dir := t.TempDir()

	a := NewAcquirer(discardLogger(), HTTPFetcher{}, objects)
	require.NoError(t, a.DownloadAndExtract(context.Background(), "s3://datasets/site-a/videos.zip", dir))

	assert.Equal(t, []string{"s3://datasets/site-a/videos.zip"}, objects.urls)
	assert.FileExists(t, filepath.Join(dir, "a.mp4"))
}

func TestUnzip_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(src, buildZip(t, map[string]string{"../escaped.txt": "x"}), 0644))

	target := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(target, 0755))

	_, err := Unzip(src, target)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escaped.txt"))
}

func TestParseObjectURL(t *testing.T) {
	bucket, key, err := ParseObjectURL("s3://datasets/site-a/videos.zip")
	require.NoError(t, err)
	assert.Equal(t, "datasets", bucket)
	assert.Equal(t, "site-a/videos.zip", key)

	_, _, err = ParseObjectURL("s3://datasets")
	assert.Error(t, err)

	_, _, err = ParseObjectURL("https://datasets/videos.zip")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
