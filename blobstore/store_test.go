package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	a := NewKey("alice", "PDF")
	b := NewKey("alice", "pdf")

	assert.True(t, strings.HasPrefix(a, "alice/"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))
	assert.NotEqual(t, a, b)

	assert.True(t, strings.HasPrefix(NewKey("../evil", "txt"), ".._evil/"))
	assert.False(t, strings.Contains(NewKey("a/b", "t/x"), "a/b"))
	assert.NotContains(t, NewKey("bob", ""), ".")
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key  string
		ok   bool
		want string
	}{
		{"alice/x.txt", true, "alice/x.txt"},
		{"/alice/x.txt", true, "alice/x.txt"},
		{"../x.txt", false, ""},
		{"alice/../../x", false, ""},
		{"alice/./x", false, ""},
		{"", false, ""},
		{`a\b`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := cleanKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	locator, err := store.Upload(ctx, src, "alice/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "alice/doc.txt", locator)

	dst := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, store.Download(ctx, locator, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	rc, err := store.Open(ctx, locator)
	require.NoError(t, err)
	b, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(b))

	require.NoError(t, store.Delete(ctx, locator))
	require.NoError(t, store.Delete(ctx, locator), "deleting twice is fine")

	err = store.Download(ctx, locator, dst)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsEscapingLocators(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidLocator)
	assert.ErrorIs(t, err, ErrStorage)

	_, err = store.Upload(ctx, "/dev/null", "../outside")
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestFileStore_UploadMissingSource(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "/no/such/file", "alice/x.txt")
	assert.ErrorIs(t, err, ErrStorage)
}
