// Package blob stores uploaded media and hands back durable URLs. The
// messaging core never looks inside an image or audio payload; once uploaded,
// content of those types travels as an opaque URL string.
package blob

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store accepts a binary payload and returns a durable URL for it.
type Store interface {
	Save(filename string, r io.Reader) (string, error)
}

// DiskStore keeps uploads on the local filesystem and serves them from a
// static route.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

// Save writes the payload under a fresh name, keeping only the original
// extension. The client-supplied filename never touches the filesystem path.
func (s *DiskStore) Save(filename string, r io.Reader) (string, error) {
	ext := sanitizeExt(filepath.Ext(filename))
	name := uuid.NewString() + ext

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}

	return s.baseURL + name, nil
}

// Dir exposes the storage root so the router can mount a static file server.
func (s *DiskStore) Dir() string { return s.dir }

func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || len(ext) > 8 {
		return ""
	}
	if mime.TypeByExtension(ext) == "" {
		return ""
	}
	return ext
}
