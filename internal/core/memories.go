package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jo-hoe/memories/internal/backend/database"
	"github.com/jo-hoe/memories/internal/backend/objectstore"
	"github.com/jo-hoe/memories/internal/backend/photostore"
)

const maxTitleLen = 200

func (service *CoreService) CreateMemory(ctx context.Context, userID, title, description string) (*database.Memory, error) {
	if !photostore.ValidID(userID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidInput, userID)
	}
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title must be between 1 and %d characters", ErrInvalidInput, maxTitleLen)
	}

	memory, err := service.database.CreateMemory(ctx, userID, title, strings.TrimSpace(description))
	if err != nil {
		slog.Error("failed to create memory", "user_id", userID, "error", err)
		return nil, err
	}
	slog.Info("memory created", "memory_id", memory.ID, "user_id", userID)
	return memory, nil
}

func (service *CoreService) GetMemory(ctx context.Context, memoryID string) (*database.Memory, error) {
	return service.database.GetMemory(ctx, memoryID)
}

func (service *CoreService) ListMemories(ctx context.Context, userID string) ([]*database.Memory, error) {
	if !photostore.ValidID(userID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidInput, userID)
	}
	return service.database.ListMemories(ctx, userID)
}

// DeleteMemory removes every photo object and cache entry of the memory, its rows and
// whatever is left of its staging directory.
func (service *CoreService) DeleteMemory(ctx context.Context, memoryID string) error {
	memory, err := service.database.GetMemory(ctx, memoryID)
	if err != nil {
		return err
	}
	photos, err := service.database.ListPhotos(ctx, memoryID)
	if err != nil {
		return err
	}

	if err := service.database.DeleteMemory(ctx, memoryID); err != nil {
		slog.Error("failed to delete memory", "memory_id", memoryID, "error", err)
		return err
	}

	for _, photo := range photos {
		service.removePhotoData(ctx, photo)
	}

	dir, err := photostore.MemoryDir(service.config.TempPhotosDir, memory.UserID, memory.ID)
	if err == nil {
		service.staging.Lock()
		err = photostore.RemoveTree(service.config.TempPhotosDir, dir)
		service.staging.Unlock()
	}
	if err != nil {
		slog.Warn("failed to remove staging directory of memory", "memory_id", memoryID, "error", err)
	}

	slog.Info("memory deleted", "memory_id", memoryID, "photo_count", len(photos))
	return nil
}

// removePhotoData deletes the stored object and cache entries of a photo whose row is gone.
// Failures leave orphans behind and are logged only.
func (service *CoreService) removePhotoData(ctx context.Context, photo *database.Photo) {
	if err := service.store.Delete(ctx, photo.StorageKey); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		slog.Error("failed to delete photo object", "photo_id", photo.ID, "key", photo.StorageKey, "error", err)
	}
	service.invalidate(ctx, photo.ID)
}
