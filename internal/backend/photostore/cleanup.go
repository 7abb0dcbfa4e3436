package photostore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DeleteFile removes path and then prunes its parent directories while they are empty,
// stopping at root. A missing file is not an error. Pruning failures are logged only.
func DeleteFile(root, path string) error {
	if !within(root, path) {
		return fmt.Errorf("path %s is outside of %s", path, root)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to delete file", "path", path, "error", err)
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	slog.Debug("file deleted", "path", path)

	PruneEmptyDirs(root, filepath.Dir(path))
	return nil
}

// PruneEmptyDirs removes dir and its ancestors below root for as long as they are empty
func PruneEmptyDirs(root, dir string) {
	for within(root, dir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to read directory while pruning", "path", dir, "error", err)
				return
			}
		} else {
			if len(entries) > 0 {
				return
			}
			// Remove only succeeds on empty directories, so a file created meanwhile is kept
			if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to remove empty directory", "path", dir, "error", err)
				return
			}
			slog.Debug("empty directory removed", "path", dir)
		}
		dir = filepath.Dir(dir)
	}
}

// RemoveTree deletes path recursively and prunes now-empty parents below root
func RemoveTree(root, path string) error {
	if !within(root, path) {
		return fmt.Errorf("path %s is outside of %s", path, root)
	}
	if err := os.RemoveAll(path); err != nil {
		slog.Error("failed to remove directory tree", "path", path, "error", err)
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	PruneEmptyDirs(root, filepath.Dir(path))
	return nil
}

// SweepStale deletes regular files under root last modified before cutoff and prunes the
// directories left empty. It returns the number of files removed.
func SweepStale(root string, cutoff time.Time) (int, error) {
	var stale []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	removed := 0
	for _, path := range stale {
		if err := DeleteFile(root, path); err != nil {
			slog.Warn("failed to remove stale file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
