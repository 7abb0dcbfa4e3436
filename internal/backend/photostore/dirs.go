package photostore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DirStatus reports what EnsureDir did
type DirStatus string

const (
	DirCreated DirStatus = "created"
	DirExists  DirStatus = "already exists"
)

const dirPerm = 0o755

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// EnsureDir creates path (and missing parents) if needed. Calling it again on the same
// path reports DirExists without error. A path occupied by a regular file is an error.
func EnsureDir(path string) (DirStatus, error) {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			slog.Error("path exists but is not a directory", "path", path)
			return "", fmt.Errorf("path %s exists but is not a directory", path)
		}
		slog.Debug("directory already exists", "path", path)
		return DirExists, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to stat directory", "path", path, "error", err)
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.MkdirAll(path, dirPerm); err != nil {
		slog.Error("failed to create directory", "path", path, "error", err)
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	slog.Info("directory created", "path", path)
	return DirCreated, nil
}

// ValidID reports whether id can be used as a user or memory id in the staging layout
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// MemoryDir returns root/user_<userID>/memory_<memoryID>. IDs are restricted to
// letters, digits, '-' and '_' so they cannot escape root.
func MemoryDir(root, userID, memoryID string) (string, error) {
	if !ValidID(userID) {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	if !ValidID(memoryID) {
		return "", fmt.Errorf("invalid memory id %q", memoryID)
	}
	return filepath.Join(root, "user_"+userID, "memory_"+memoryID), nil
}

// MemoryKey is the slash separated form of MemoryDir used for object keys
func MemoryKey(userID, memoryID, filename string) string {
	return "user_" + userID + "/memory_" + memoryID + "/" + filename
}

// within reports whether path lies strictly inside root
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
