// Package blobstore persists merged bill documents.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
	ErrExists     = errors.New("blob already exists")
)

// Ref identifies a stored blob. It is the key the blob was stored under.
type Ref string

// Store is the blob storage port used by bill submission and download.
type Store interface {
	// Put stores data under key and fails with ErrExists if key is taken.
	Put(ctx context.Context, key string, data []byte) (Ref, error)
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
	Delete(ctx context.Context, ref Ref) error
}

// BillKey is the storage key of a bill's merged document.
func BillKey(departmentID, billNo string) string {
	return departmentID + "/" + billNo + "_merged.pdf"
}

// FS stores blobs as files below a root directory.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FS{root: abs}, nil
}

// resolve maps a slash-separated key to a path inside root, refusing
// absolute keys and any key that would escape root.
func (s *FS) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes data atomically: it lands in a temp file that is renamed into
// place. Existing blobs are never overwritten.
func (s *FS) Put(ctx context.Context, key string, data []byte) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return Ref(key), nil
}

func (s *FS) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(string(ref))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob; a missing blob is not an error.
func (s *FS) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(string(ref))
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
