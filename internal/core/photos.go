package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/memories/internal/backend/cache"
	"github.com/jo-hoe/memories/internal/backend/commandstructure"
	"github.com/jo-hoe/memories/internal/backend/database"
	"github.com/jo-hoe/memories/internal/backend/imagecodec"
	"github.com/jo-hoe/memories/internal/backend/photostore"
)

const (
	MoveUp   = "up"
	MoveDown = "down"
)

// Upload is one file of a batch upload
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// AddPhoto stages r below the memory's temp directory, converts it to WebP, publishes the
// result to the object store and records it as the last photo of the memory. Staged and
// processed files never outlive the call.
func (service *CoreService) AddPhoto(ctx context.Context, memoryID, filename string, r io.Reader) (*database.Photo, error) {
	start := time.Now()
	memory, err := service.database.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	photo, err := service.addPhoto(ctx, memory, filename, r)
	if err != nil {
		slog.Error("failed to add photo", "memory_id", memoryID, "filename", filename, "error", err)
		return nil, err
	}

	slog.Info("photo added",
		"photo_id", photo.ID,
		"memory_id", memoryID,
		"size_bytes", photo.Size,
		"width", photo.Width,
		"height", photo.Height,
		"duration_ms", time.Since(start).Milliseconds())
	return photo, nil
}

func (service *CoreService) addPhoto(ctx context.Context, memory *database.Memory, filename string, r io.Reader) (*database.Photo, error) {
	root := service.config.TempPhotosDir
	dir, err := photostore.MemoryDir(root, memory.UserID, memory.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	stagedPath := filepath.Join(dir, photostore.GenerateFilename(filename))
	processed, err := service.stageAndProcessLocked(ctx, dir, stagedPath, r)
	if err != nil {
		service.discardStaged(stagedPath)
		return nil, err
	}

	key := photostore.MemoryKey(memory.UserID, memory.ID, processed.Filename)
	if err := service.store.Put(ctx, key, processed.Path, imagecodec.WebPContentType); err != nil {
		service.discardStaged(processed.Path)
		return nil, fmt.Errorf("failed to store processed photo: %w", err)
	}
	// Put consumed the file, this only prunes the emptied staging directories
	service.discardStaged(processed.Path)

	photo, err := service.database.CreatePhoto(ctx, &database.Photo{
		MemoryID:    memory.ID,
		UserID:      memory.UserID,
		Filename:    processed.Filename,
		StorageKey:  key,
		ContentType: imagecodec.WebPContentType,
		Size:        processed.Size,
		Width:       processed.Width,
		Height:      processed.Height,
	})
	if err != nil {
		if delErr := service.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			slog.Error("failed to remove stored photo after database error", "key", key, "error", delErr)
		}
		return nil, err
	}
	return photo, nil
}

func (service *CoreService) stageAndProcessLocked(ctx context.Context, dir, stagedPath string, r io.Reader) (*photostore.ProcessedImage, error) {
	service.staging.RLock()
	defer service.staging.RUnlock()
	return service.stageAndProcess(ctx, dir, stagedPath, r)
}

// stageAndProcess must be called with the staging read lock held. On failure the staged
// file may still exist and is left for the caller to discard.
func (service *CoreService) stageAndProcess(ctx context.Context, dir, stagedPath string, r io.Reader) (*photostore.ProcessedImage, error) {
	if _, err := photostore.EnsureDir(dir); err != nil {
		return nil, err
	}

	head, err := stage(r, stagedPath, service.config.Processing.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	contentType := imagecodec.SniffContentType(head)
	if !imagecodec.IsSupportedContentType(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
	}

	baseName := photostore.BaseName(filepath.Base(stagedPath))
	processed, err := service.processor.ProcessImage(ctx, stagedPath, dir, baseName)
	if errors.Is(err, photostore.ErrUnsupportedImage) {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedMediaType, err)
	}
	if err != nil {
		return nil, err
	}
	return processed, nil
}

// stage copies r into path, failing with ErrTooLarge past maxBytes. It returns the
// leading bytes of the file for content sniffing.
func stage(r io.Reader, path string, maxBytes int64) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}

	head := &headBuffer{limit: imagecodec.SniffLen}
	written, copyErr := io.Copy(io.MultiWriter(f, head), io.LimitReader(r, maxBytes+1))
	closeErr := f.Close()

	if copyErr != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close staged file: %w", closeErr)
	}
	if written > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	if written == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupportedMediaType)
	}
	return head.Bytes(), nil
}

// headBuffer keeps the first limit bytes written to it
type headBuffer struct {
	bytes.Buffer
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - h.Len(); room > 0 {
		h.Buffer.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

// discardStaged deletes a staged file and prunes the staging directories it leaves empty
func (service *CoreService) discardStaged(path string) {
	service.staging.Lock()
	defer service.staging.Unlock()
	if err := photostore.DeleteFile(service.config.TempPhotosDir, path); err != nil {
		slog.Warn("failed to discard staged file", "path", path, "error", err)
	}
}

// AddPhotos processes a batch concurrently, bounded by processing.workers. Photos are
// ordered as given. If any upload fails, the photos added by this call are removed again.
func (service *CoreService) AddPhotos(ctx context.Context, memoryID string, uploads []Upload) ([]*database.Photo, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrInvalidInput)
	}
	memory, err := service.database.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	photos := make([]*database.Photo, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(service.config.Processing.Workers)
	for i, upload := range uploads {
		g.Go(func() (err error) {
			// A panicking decoder must not take the process down with this goroutine
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic while adding photo", "filename", upload.Filename, "panic", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("%s: %w: %v", upload.Filename, ErrProcessingPanic, r)
				}
			}()

			rc, err := upload.Open()
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", upload.Filename, err)
			}
			defer func() {
				_ = rc.Close()
			}()

			photo, err := service.addPhoto(gctx, memory, upload.Filename, rc)
			if err != nil {
				return fmt.Errorf("%s: %w", upload.Filename, err)
			}
			photos[i] = photo
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("batch upload failed", "memory_id", memoryID, "file_count", len(uploads), "error", err)
		rollbackCtx := context.WithoutCancel(ctx)
		for _, photo := range photos {
			if photo == nil {
				continue
			}
			if delErr := service.database.DeletePhoto(rollbackCtx, photo.ID); delErr != nil {
				slog.Error("failed to roll back photo", "photo_id", photo.ID, "error", delErr)
				continue
			}
			service.removePhotoData(rollbackCtx, photo)
		}
		return nil, err
	}

	ordered, err := service.keepUploadOrder(ctx, memoryID, photos)
	if err != nil {
		return nil, err
	}
	slog.Info("batch upload complete", "memory_id", memoryID, "file_count", len(ordered))
	return ordered, nil
}

// keepUploadOrder re-ranks the batch so it follows the upload order rather than the
// order in which workers finished
func (service *CoreService) keepUploadOrder(ctx context.Context, memoryID string, batch []*database.Photo) ([]*database.Photo, error) {
	all, err := service.database.ListPhotos(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	inBatch := make(map[string]bool, len(batch))
	for _, photo := range batch {
		inBatch[photo.ID] = true
	}
	existing := make(map[string]string, len(all))
	order := make([]string, 0, len(all))
	for _, photo := range all {
		existing[photo.ID] = photo.Rank
		if !inBatch[photo.ID] {
			order = append(order, photo.ID)
		}
	}
	for _, photo := range batch {
		order = append(order, photo.ID)
	}

	updates := database.Reorder(existing, order)
	if err := service.database.UpdatePhotoRanks(ctx, updates); err != nil {
		return nil, err
	}
	for _, photo := range batch {
		if rank, ok := updates[photo.ID]; ok {
			photo.Rank = rank
		}
	}
	return batch, nil
}

func (service *CoreService) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	return service.database.GetPhoto(ctx, photoID)
}

func (service *CoreService) ListPhotos(ctx context.Context, memoryID string) ([]*database.Photo, error) {
	if _, err := service.database.GetMemory(ctx, memoryID); err != nil {
		return nil, err
	}
	return service.database.ListPhotos(ctx, memoryID)
}

// OpenPhoto returns the encoded WebP bytes of a photo, served from the cache when possible
func (service *CoreService) OpenPhoto(ctx context.Context, photoID string) ([]byte, *database.Photo, error) {
	photo, err := service.database.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, nil, err
	}

	data, err := service.cached(ctx, cache.PhotoKey(photoID), func() ([]byte, error) {
		rc, _, err := service.store.Open(ctx, photo.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open photo %s: %w", photoID, err)
		}
		defer func() {
			_ = rc.Close()
		}()
		return io.ReadAll(rc)
	})
	if err != nil {
		return nil, nil, err
	}
	return data, photo, nil
}

// Thumbnail returns a square WebP thumbnail of processing.thumbnailSize pixels
func (service *CoreService) Thumbnail(ctx context.Context, photoID string) ([]byte, error) {
	if _, err := service.database.GetPhoto(ctx, photoID); err != nil {
		return nil, err
	}

	return service.cached(ctx, cache.ThumbnailKey(photoID), func() ([]byte, error) {
		data, _, err := service.OpenPhoto(ctx, photoID)
		if err != nil {
			return nil, err
		}
		img, _, err := imagecodec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode photo %s: %w", photoID, err)
		}
		thumb, err := commandstructure.ExecuteCommands(img, service.thumbnail)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := imagecodec.EncodeWebP(&buf, thumb, service.config.Processing.Quality); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

// cached returns the cached value of key or loads and caches it. Cache failures are
// logged and fall through to load.
func (service *CoreService) cached(ctx context.Context, key string, load func() ([]byte, error)) ([]byte, error) {
	data, ok, err := service.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	}
	if ok {
		slog.Debug("cache hit", "key", key)
		return data, nil
	}

	data, err = load()
	if err != nil {
		return nil, err
	}
	if err := service.cache.Set(ctx, key, data); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return data, nil
}

func (service *CoreService) invalidate(ctx context.Context, photoID string) {
	if err := service.cache.Delete(ctx, cache.PhotoKey(photoID), cache.ThumbnailKey(photoID)); err != nil {
		slog.Warn("failed to invalidate cache", "photo_id", photoID, "error", err)
	}
}

func (service *CoreService) DeletePhoto(ctx context.Context, photoID string) error {
	photo, err := service.database.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if err := service.database.DeletePhoto(ctx, photoID); err != nil {
		slog.Error("failed to delete photo", "photo_id", photoID, "error", err)
		return err
	}
	service.removePhotoData(ctx, photo)
	slog.Info("photo deleted", "photo_id", photoID, "memory_id", photo.MemoryID)
	return nil
}

// MovePhoto swaps a photo with its neighbour in the given direction and returns the
// memory's photos in their new order. Moving past either end is a no-op.
func (service *CoreService) MovePhoto(ctx context.Context, photoID, direction string) ([]*database.Photo, error) {
	if direction != MoveUp && direction != MoveDown {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrInvalidInput, MoveUp, MoveDown)
	}
	photo, err := service.database.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	photos, err := service.database.ListPhotos(ctx, photo.MemoryID)
	if err != nil {
		return nil, err
	}

	index := -1
	existing := make(map[string]string, len(photos))
	order := make([]string, len(photos))
	for i, p := range photos {
		existing[p.ID] = p.Rank
		order[i] = p.ID
		if p.ID == photoID {
			index = i
		}
	}
	if index < 0 {
		return nil, ErrNotFound
	}

	target := index - 1
	if direction == MoveDown {
		target = index + 1
	}
	if target < 0 || target >= len(order) {
		return photos, nil
	}
	order[index], order[target] = order[target], order[index]

	updates := database.Reorder(existing, order)
	if err := service.database.UpdatePhotoRanks(ctx, updates); err != nil {
		slog.Error("failed to reorder photos", "photo_id", photoID, "error", err)
		return nil, err
	}
	slog.Debug("photo moved", "photo_id", photoID, "direction", direction, "updated_ranks", len(updates))
	return service.database.ListPhotos(ctx, photo.MemoryID)
}
