package core

import (
	"log/slog"
	"time"

	"github.com/jo-hoe/memories/internal/backend/photostore"
)

// CleanupStaging removes staged uploads older than processing.stagingMaxAge, left behind
// by a crash or kill mid-upload, and prunes the directories they leave empty.
func (service *CoreService) CleanupStaging() (int, error) {
	cutoff := time.Now().Add(-service.config.Processing.StagingMaxAge)

	service.staging.Lock()
	defer service.staging.Unlock()

	removed, err := photostore.SweepStale(service.config.TempPhotosDir, cutoff)
	if err != nil {
		slog.Error("failed to clean up staging directory", "path", service.config.TempPhotosDir, "error", err)
		return removed, err
	}
	slog.Info("staging directory cleaned up", "path", service.config.TempPhotosDir, "removed_files", removed)
	return removed, nil
}
