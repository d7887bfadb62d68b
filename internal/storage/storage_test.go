package storage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/storage"
)

func newStore(t *testing.T) (*storage.Local, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocal(root, "http://127.0.0.1:7612/media")
	require.NoError(t, err)
	return store, root
}

func TestSaveReturnsServableURL(t *testing.T) {
	store, root := newStore(t)

	url, err := store.Save(context.Background(), "audio", ".mp3", []byte("narration"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://127.0.0.1:7612/media/audio/"))
	require.True(t, strings.HasSuffix(url, ".mp3"))

	rel := strings.TrimPrefix(url, "http://127.0.0.1:7612/media/")
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	require.Equal(t, "narration", string(content))
}

func TestSaveFileMovesIntoStore(t *testing.T) {
	store, _ := newStore(t)

	src := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(src, []byte("render"), 0o644))

	url, err := store.SaveFile(context.Background(), "video", src)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(url, ".mp4"))

	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err), "source should be gone after store")

	local, err := store.Localize(context.Background(), url, t.TempDir())
	require.NoError(t, err)
	content, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "render", string(content))
}

func TestLocalizeDownloadsForeignURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-image"))
	}))
	defer server.Close()

	store, _ := newStore(t)
	local, err := store.Localize(context.Background(), server.URL+"/gen/img.png", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ".png", filepath.Ext(local))

	content, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "remote-image", string(content))
}

func TestLocalizeRejectsBadURL(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Localize(context.Background(), "file:///etc/passwd", t.TempDir())
	require.Error(t, err)
}

func TestRemoveIgnoresForeignURL(t *testing.T) {
	store, _ := newStore(t)
	require.NoError(t, store.Remove(context.Background(), "https://example.com/other.png"))
}

func TestRemoveDeletesOwnedArtifact(t *testing.T) {
	store, _ := newStore(t)
	url, err := store.Save(context.Background(), "covers", ".jpg", []byte("cover"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), url))
	_, err = store.Localize(context.Background(), url, t.TempDir())
	require.Error(t, err)
}

func TestSaveRejectsTraversalCategory(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Save(context.Background(), "../escape", ".bin", []byte("x"))
	require.Error(t, err)
}
