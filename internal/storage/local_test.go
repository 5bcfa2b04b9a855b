package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalBackendPutAndDelete(t *testing.T) {
	root := t.TempDir()
	backend, err := New(context.Background(), Config{LocalPath: root, PublicBaseURL: "http://localhost:8000/media/"})
	require.NoError(t, err)

	url, err := backend.Put(context.Background(), "orgs/abc/logo.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/media/orgs/abc/logo.png", url)

	data, err := os.ReadFile(filepath.Join(root, "orgs", "abc", "logo.png"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))

	require.NoError(t, backend.Delete(context.Background(), "orgs/abc/logo.png"))
	_, err = os.Stat(filepath.Join(root, "orgs", "abc", "logo.png"))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, backend.Delete(context.Background(), "orgs/abc/missing.png"))
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	_, err := cleanKey("../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = cleanKey("  ")
	require.ErrorIs(t, err, ErrInvalidKey)

	key, err := cleanKey("/orgs//x/logo.png")
	require.NoError(t, err)
	require.Equal(t, "orgs/x/logo.png", key)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "ftp"})
	require.Error(t, err)
}
