package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/memories/internal/backend/photostore"
)

// LocalStore keeps objects as files below a root directory
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage directory must not be empty")
	}
	if _, err := photostore.EnsureDir(root); err != nil {
		return nil, err
	}
	slog.Info("local object store initialized", "root", root)
	return &LocalStore{root: root}, nil
}

// resolve maps a key to a file below root, rejecting keys that would escape it
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *LocalStore) Put(ctx context.Context, key, src, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if _, err := photostore.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	if err := os.Rename(src, dst); err == nil {
		slog.Debug("object moved into local store", "key", key)
		return nil
	}

	// Rename fails across filesystems, fall back to copy and delete
	if err := copyFile(src, dst); err != nil {
		slog.Error("failed to store object", "key", key, "error", err)
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove source after copy", "path", src, "error", err)
	}
	slog.Debug("object copied into local store", "key", key)
	return nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, Info{}, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return nil, Info{}, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Info{}, ErrObjectNotFound
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to open %s: %w", key, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Info{}, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	return f, Info{
		Key:          key,
		ContentType:  mime.TypeByExtension(filepath.Ext(p)),
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return ErrObjectNotFound
	}
	return photostore.DeleteFile(s.root, p)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
