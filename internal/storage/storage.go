// Package storage persists generated artifacts (narration audio, images,
// rendered videos, covers) under the media directory and addresses them by
// public URL so that stored project rows never reference raw disk paths.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/services"
)

// Store saves artifacts and resolves their URLs back to readable files.
type Store interface {
	// Save writes data under category and returns the public URL.
	// ext must include the leading dot, e.g. ".mp3".
	Save(ctx context.Context, category string, ext string, data []byte) (string, error)
	// SaveFile moves an existing file into the store and returns its URL.
	SaveFile(ctx context.Context, category string, srcPath string) (string, error)
	// Localize makes the artifact behind rawURL available as a local file
	// inside dir and returns its path. Store-owned URLs resolve without
	// copying; foreign URLs are downloaded.
	Localize(ctx context.Context, rawURL string, dir string) (string, error)
	// Remove deletes the artifact behind a store-owned URL. Foreign URLs
	// are ignored.
	Remove(ctx context.Context, rawURL string) error
}

// Local stores artifacts on the local filesystem beneath a media root that
// the daemon serves over HTTP.
type Local struct {
	root    string
	baseURL string
	client  *http.Client
}

// NewLocal returns a store rooted at mediaDir whose artifacts are reachable
// under baseURL.
func NewLocal(mediaDir, baseURL string) (*Local, error) {
	root := strings.TrimSpace(mediaDir)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "media directory is not configured", nil)
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "media base URL is not configured", nil)
	}
	return &Local{
		root:    root,
		baseURL: base,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (s *Local) Save(ctx context.Context, category string, ext string, data []byte) (string, error) {
	relPath, err := s.allocate(category, ext)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrIO, "storage", "save", "write artifact", err)
	}
	return s.urlFor(relPath), nil
}

func (s *Local) SaveFile(ctx context.Context, category string, srcPath string) (string, error) {
	ext := filepath.Ext(srcPath)
	relPath, err := s.allocate(category, ext)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err := os.Rename(srcPath, full); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		if copyErr := copyFile(srcPath, full); copyErr != nil {
			return "", services.Wrap(services.ErrIO, "storage", "save", "store artifact", copyErr)
		}
		os.Remove(srcPath)
	}
	return s.urlFor(relPath), nil
}

func (s *Local) Localize(ctx context.Context, rawURL string, dir string) (string, error) {
	if relPath, ok := s.ownedPath(rawURL); ok {
		full := filepath.Join(s.root, filepath.FromSlash(relPath))
		if _, err := os.Stat(full); err != nil {
			return "", services.Wrap(services.ErrIO, "storage", "localize", fmt.Sprintf("artifact missing for %s", rawURL), err)
		}
		return full, nil
	}
	return s.download(ctx, rawURL, dir)
}

func (s *Local) Remove(ctx context.Context, rawURL string) error {
	relPath, ok := s.ownedPath(rawURL)
	if !ok {
		return nil
	}
	full := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrIO, "storage", "remove", fmt.Sprintf("delete artifact for %s", rawURL), err)
	}
	return nil
}

func (s *Local) allocate(category string, ext string) (string, error) {
	category = strings.Trim(strings.TrimSpace(category), "/")
	if category == "" || strings.Contains(category, "..") {
		return "", services.Wrap(services.ErrValidation, "storage", "save", fmt.Sprintf("invalid artifact category %q", category), nil)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	dir := filepath.Join(s.root, filepath.FromSlash(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, "storage", "save", "create artifact directory", err)
	}
	return path.Join(category, uuid.NewString()+ext), nil
}

func (s *Local) urlFor(relPath string) string {
	return s.baseURL + "/" + relPath
}

// ownedPath reports whether rawURL points into this store and returns the
// path relative to the media root.
func (s *Local) ownedPath(rawURL string) (string, bool) {
	trimmed := strings.TrimSpace(rawURL)
	if !strings.HasPrefix(trimmed, s.baseURL+"/") {
		return "", false
	}
	rel := strings.TrimPrefix(trimmed, s.baseURL+"/")
	rel = path.Clean("/" + rel)[1:]
	if rel == "" || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}

func (s *Local) download(ctx context.Context, rawURL string, dir string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", services.Wrap(services.ErrValidation, "storage", "localize", fmt.Sprintf("unsupported artifact URL %q", rawURL), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", services.Wrap(services.ErrUpstream, "storage", "localize", "build download request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrUpstream, "storage", "localize", fmt.Sprintf("download %s", rawURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrUpstream, "storage", "localize", fmt.Sprintf("download %s returned status %d", rawURL, resp.StatusCode), nil)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, "storage", "localize", "create download directory", err)
	}
	ext := path.Ext(parsed.Path)
	dest := filepath.Join(dir, uuid.NewString()+ext)
	file, err := os.Create(dest)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "storage", "localize", "create download file", err)
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(dest)
		return "", services.Wrap(services.ErrIO, "storage", "localize", fmt.Sprintf("write download for %s", rawURL), err)
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
