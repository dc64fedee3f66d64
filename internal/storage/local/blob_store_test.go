package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	storepkg "github.com/uridolan77/WebScraping-sub002/internal/store"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "pages")
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsBadBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: "  "})
	require.ErrorContains(t, err, "base directory is required")

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{BaseDir: file})
	require.Error(t, err)
}

func TestPutObjectWritesAndReadsBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uri, err := store.PutObject(context.Background(), "pages/run-1/abc123.txt", "text/plain", strings.NewReader("milk 1.99"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "pages", "run-1", "abc123.txt"), uri)

	body, err := store.GetObject(context.Background(), "pages/run-1/abc123.txt")
	require.NoError(t, err)
	require.Equal(t, "milk 1.99", string(body))

	entries, err := os.ReadDir(filepath.Join(dir, "pages", "run-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are renamed away")
}

func TestPutObjectKeepsExistingContentAddressedFile(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.PutObject(ctx, "hash.txt", "", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "hash.txt", "", strings.NewReader("second"))
	require.NoError(t, err)

	body, err := store.GetObject(ctx, "hash.txt")
	require.NoError(t, err)
	require.Equal(t, "first", string(body))

	_, err = store.GetObject(ctx, "missing.txt")
	require.ErrorIs(t, err, storepkg.ErrNotFound)
}

func TestPutObjectRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, name := range []string{"", "../outside.txt", "/etc/passwd", "a/../../b.txt"} {
		_, err := store.PutObject(context.Background(), name, "", strings.NewReader("x"))
		require.Error(t, err, name)
	}
}
