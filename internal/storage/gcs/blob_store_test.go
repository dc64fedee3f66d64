package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	storepkg "github.com/uridolan77/WebScraping-sub002/internal/store"
)

func newTestBlobStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication(), storage.WithJSONReads())
	require.NoError(t, err)

	store, err := New(client, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/test-bucket/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "page body")
		assert.Contains(t, string(body), "pages/abc.txt")
		_, _ = fmt.Fprintln(w, `{"bucket":"test-bucket","name":"pages/abc.txt"}`)
	})
	store := newTestBlobStore(t, handler, Config{Bucket: "test-bucket", Prefix: "/pages/"})

	uri, err := store.PutObject(context.Background(), "abc.txt", "text/plain", strings.NewReader("page body"))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/pages/abc.txt", uri)
}

func TestGetObjectReadsStoredText(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.Error(w, `{"error":{"code":404,"message":"No such object"}}`, http.StatusNotFound)
			return
		}
		assert.Contains(t, r.URL.Path, "pages/run-1/abc.txt")
		_, _ = io.WriteString(w, "baseline text")
	})
	store := newTestBlobStore(t, handler, Config{Bucket: "test-bucket", Prefix: "pages"})

	data, err := store.GetObject(context.Background(), "run-1/abc.txt")
	require.NoError(t, err)
	require.Equal(t, "baseline text", string(data))

	_, err = store.GetObject(context.Background(), "run-1/missing.txt")
	require.ErrorIs(t, err, storepkg.ErrNotFound)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store := newTestBlobStore(t, handler, Config{Bucket: "test-bucket"})

	_, err := store.PutObject(context.Background(), "abc.txt", "text/plain", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader(""))
	require.ErrorContains(t, err, "path is required")
}
