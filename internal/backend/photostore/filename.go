package photostore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxExtensionLen = 10

// GenerateFilename returns a collision free name of the form <unix-millis>-<uuid><ext>.
// Only the sanitised, lower-cased extension of original is kept; directory components
// and everything else in original are discarded.
func GenerateFilename(original string) string {
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), sanitizeExtension(original))
}

// BaseName strips the extension from a generated filename
func BaseName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func sanitizeExtension(original string) string {
	// Treat both separators as path separators regardless of platform
	name := original[strings.LastIndexAny(original, `/\`)+1:]
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == "." || ext == name {
		return ""
	}

	var b strings.Builder
	b.WriteByte('.')
	for _, r := range ext[1:] {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 || b.Len() > maxExtensionLen+1 {
		return ""
	}
	return b.String()
}
