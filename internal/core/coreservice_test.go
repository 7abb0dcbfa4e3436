package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jo-hoe/memories/internal/backend/cache"
	"github.com/jo-hoe/memories/internal/backend/commandstructure"
	"github.com/jo-hoe/memories/internal/backend/database"
	"github.com/jo-hoe/memories/internal/backend/imagecodec"
	"github.com/jo-hoe/memories/internal/backend/objectstore"
)

type testEnv struct {
	service *CoreService
	config  *ServiceConfig
	store   *objectstore.LocalStore
	redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T, mutate func(*ServiceConfig)) *testEnv {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()
	mr := miniredis.RunT(t)

	config := &ServiceConfig{
		TempPhotosDir: filepath.Join(base, "temp_photos"),
		Database:      Database{Type: database.TypeSQLite, ConnectionString: ":memory:"},
		Storage:       objectstore.Config{Type: objectstore.TypeLocal, LocalDir: filepath.Join(base, "photos")},
		Cache:         cache.Config{Type: cache.TypeRedis, Address: mr.Addr()},
		Processing:    Processing{MaxWidth: 100, MaxHeight: 100, ThumbnailSize: 16},
	}
	config.ApplyDefaults()
	if mutate != nil {
		mutate(config)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	service, err := NewCoreService(ctx, config)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })

	store, ok := service.store.(*objectstore.LocalStore)
	if !ok {
		t.Fatalf("expected local store, got %T", service.store)
	}
	return &testEnv{service: service, config: config, store: store, redis: mr}
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// countFiles returns the number of regular files below dir
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	return n
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCoreService_AddPhoto(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	memory, err := env.service.CreateMemory(ctx, "u1", "  Trip  ", "")
	if err != nil {
		t.Fatalf("CreateMemory error: %v", err)
	}
	if memory.Title != "Trip" {
		t.Errorf("Expected trimmed title, got %q", memory.Title)
	}

	photo, err := env.service.AddPhoto(ctx, memory.ID, "beach.PNG", bytes.NewReader(pngBytes(t, 400, 200)))
	if err != nil {
		t.Fatalf("AddPhoto error: %v", err)
	}

	if photo.Width != 100 || photo.Height != 50 {
		t.Errorf("Expected 100x50, got %dx%d", photo.Width, photo.Height)
	}
	if photo.ContentType != imagecodec.WebPContentType || !strings.HasSuffix(photo.Filename, ".webp") {
		t.Errorf("unexpected photo %+v", photo)
	}
	wantPrefix := "user_u1/memory_" + memory.ID + "/"
	if !strings.HasPrefix(photo.StorageKey, wantPrefix) {
		t.Errorf("Expected key prefix %s, got %s", wantPrefix, photo.StorageKey)
	}

	// Staging tree is empty again and pruned down to the root
	if names := dirEntries(t, env.config.TempPhotosDir); len(names) != 0 {
		t.Errorf("Expected empty staging root, got %v", names)
	}

	data, got, err := env.service.OpenPhoto(ctx, photo.ID)
	if err != nil {
		t.Fatalf("OpenPhoto error: %v", err)
	}
	if got.ID != photo.ID || int64(len(data)) != photo.Size {
		t.Errorf("Expected %d bytes, got %d", photo.Size, len(data))
	}
	if imagecodec.SniffContentType(data) != imagecodec.WebPContentType {
		t.Error("Expected WebP bytes")
	}
	if !env.redis.Exists(cache.PhotoKey(photo.ID)) {
		t.Error("Expected photo to be cached after OpenPhoto")
	}
}

func TestCoreService_AddPhoto_UnsupportedMedia(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	_, err := env.service.AddPhoto(ctx, memory.ID, "notes.txt", strings.NewReader("just some text"))
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("Expected ErrUnsupportedMediaType, got %v", err)
	}

	// Claims to be a PNG but is truncated
	truncated := pngBytes(t, 50, 50)[:60]
	_, err = env.service.AddPhoto(ctx, memory.ID, "broken.png", bytes.NewReader(truncated))
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("Expected ErrUnsupportedMediaType for truncated PNG, got %v", err)
	}

	if n := countFiles(t, env.config.TempPhotosDir); n != 0 {
		t.Errorf("Expected no staged files to remain, found %d", n)
	}
	if names := dirEntries(t, env.config.TempPhotosDir); len(names) != 0 {
		t.Errorf("Expected staging directories to be pruned, got %v", names)
	}
}

func TestCoreService_AddPhoto_TooLarge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *ServiceConfig) { c.Processing.MaxUploadBytes = 100 })
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	_, err := env.service.AddPhoto(ctx, memory.ID, "big.png", bytes.NewReader(pngBytes(t, 64, 64)))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
	if n := countFiles(t, env.config.TempPhotosDir); n != 0 {
		t.Errorf("Expected no staged files to remain, found %d", n)
	}
}

func TestCoreService_AddPhoto_UnknownMemory(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.service.AddPhoto(context.Background(), "missing", "a.png", bytes.NewReader(pngBytes(t, 4, 4)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCoreService_AddPhoto_ConfiguredCommands(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *ServiceConfig) {
		c.Processing.Commands = []CommandConfig{
			{Name: "OrientationCommand", Params: map[string]any{"orientation": "portrait"}},
			{Name: "GrayscaleCommand"},
		}
	})
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	photo, err := env.service.AddPhoto(ctx, memory.ID, "wide.png", bytes.NewReader(pngBytes(t, 400, 200)))
	if err != nil {
		t.Fatalf("AddPhoto error: %v", err)
	}
	// Resized to 100x50 first, then turned upright
	if photo.Width != 50 || photo.Height != 100 {
		t.Errorf("Expected 50x100, got %dx%d", photo.Width, photo.Height)
	}
}

func TestCoreService_AddPhotos_KeepsUploadOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *ServiceConfig) { c.Processing.Workers = 3 })
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	first, err := env.service.AddPhoto(ctx, memory.ID, "first.png", bytes.NewReader(pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("AddPhoto error: %v", err)
	}

	var uploads []Upload
	// Larger images first so workers are likely to finish out of order
	for _, size := range []int{300, 200, 100, 20, 10} {
		data := pngBytes(t, size, size)
		uploads = append(uploads, Upload{
			Filename: "batch.png",
			Open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		})
	}

	added, err := env.service.AddPhotos(ctx, memory.ID, uploads)
	if err != nil {
		t.Fatalf("AddPhotos error: %v", err)
	}
	if len(added) != len(uploads) {
		t.Fatalf("Expected %d photos, got %d", len(uploads), len(added))
	}

	photos, err := env.service.ListPhotos(ctx, memory.ID)
	if err != nil {
		t.Fatalf("ListPhotos error: %v", err)
	}
	if photos[0].ID != first.ID {
		t.Errorf("Expected existing photo to stay first")
	}
	for i, photo := range added {
		if photos[i+1].ID != photo.ID {
			t.Fatalf("photo %d out of upload order", i)
		}
	}
}

func TestCoreService_AddPhotos_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *ServiceConfig) { c.Processing.Workers = 1 })
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	good := pngBytes(t, 10, 10)
	uploads := []Upload{
		{Filename: "good.png", Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(good)), nil }},
		{Filename: "bad.txt", Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("nope")), nil }},
	}

	if _, err := env.service.AddPhotos(ctx, memory.ID, uploads); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("Expected ErrUnsupportedMediaType, got %v", err)
	}

	photos, _ := env.service.ListPhotos(ctx, memory.ID)
	if len(photos) != 0 {
		t.Errorf("Expected batch to be rolled back, found %d photos", len(photos))
	}
	if n := countFiles(t, env.config.Storage.LocalDir); n != 0 {
		t.Errorf("Expected no stored objects after rollback, found %d", n)
	}
}

const panickingCommandName = "PanickingCommand"

type panickingCommand struct{}

func (panickingCommand) Name() string { return panickingCommandName }

func (panickingCommand) Execute(image.Image) (image.Image, error) {
	panic("decoder exploded")
}

func init() {
	err := commandstructure.DefaultRegistry.Register(panickingCommandName, func(map[string]any) (commandstructure.Command, error) {
		return panickingCommand{}, nil
	})
	if err != nil {
		panic(err)
	}
}

func TestCoreService_AddPhotos_RecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *ServiceConfig) {
		c.Processing.Commands = []CommandConfig{{Name: panickingCommandName}}
	})
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	data := pngBytes(t, 10, 10)
	uploads := []Upload{{
		Filename: "a.png",
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}}
	if _, err := env.service.AddPhotos(ctx, memory.ID, uploads); !errors.Is(err, ErrProcessingPanic) {
		t.Fatalf("Expected ErrProcessingPanic, got %v", err)
	}

	// The staging lock was released, so pruning still goes through
	if _, err := env.service.CleanupStaging(); err != nil {
		t.Fatalf("CleanupStaging error: %v", err)
	}
}

func TestCoreService_AddPhoto_PixelBudget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *ServiceConfig) { c.Processing.MaxPixels = 10_000 })
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	_, err := env.service.AddPhoto(ctx, memory.ID, "big.png", bytes.NewReader(pngBytes(t, 200, 100)))
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("Expected ErrUnsupportedMediaType, got %v", err)
	}
	if n := countFiles(t, env.config.TempPhotosDir); n != 0 {
		t.Errorf("Expected no staged files to remain, found %d", n)
	}

	if _, err := env.service.AddPhoto(ctx, memory.ID, "small.png", bytes.NewReader(pngBytes(t, 100, 100))); err != nil {
		t.Fatalf("Expected image within budget to be accepted, got %v", err)
	}
}

func TestCoreService_Thumbnail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")
	photo, err := env.service.AddPhoto(ctx, memory.ID, "a.png", bytes.NewReader(pngBytes(t, 80, 40)))
	if err != nil {
		t.Fatalf("AddPhoto error: %v", err)
	}

	data, err := env.service.Thumbnail(ctx, photo.ID)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	cfg, format, err := imagecodec.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig error: %v", err)
	}
	if format != "webp" || cfg.Width != 16 || cfg.Height != 16 {
		t.Errorf("Expected 16x16 webp, got %dx%d %s", cfg.Width, cfg.Height, format)
	}
	if !env.redis.Exists(cache.ThumbnailKey(photo.ID)) {
		t.Error("Expected thumbnail to be cached")
	}
}

func TestCoreService_MovePhoto(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")

	var ids []string
	for i := 0; i < 3; i++ {
		photo, err := env.service.AddPhoto(ctx, memory.ID, "a.png", bytes.NewReader(pngBytes(t, 8, 8)))
		if err != nil {
			t.Fatalf("AddPhoto error: %v", err)
		}
		ids = append(ids, photo.ID)
	}

	photos, err := env.service.MovePhoto(ctx, ids[2], MoveUp)
	if err != nil {
		t.Fatalf("MovePhoto error: %v", err)
	}
	want := []string{ids[0], ids[2], ids[1]}
	for i, photo := range photos {
		if photo.ID != want[i] {
			t.Fatalf("after move up: position %d = %s, want %s", i, photo.ID, want[i])
		}
	}

	photos, err = env.service.MovePhoto(ctx, ids[0], MoveUp)
	if err != nil {
		t.Fatalf("MovePhoto at top error: %v", err)
	}
	if photos[0].ID != ids[0] {
		t.Error("Expected moving the first photo up to be a no-op")
	}

	photos, err = env.service.MovePhoto(ctx, ids[0], MoveDown)
	if err != nil {
		t.Fatalf("MovePhoto down error: %v", err)
	}
	want = []string{ids[2], ids[0], ids[1]}
	for i, photo := range photos {
		if photo.ID != want[i] {
			t.Fatalf("after move down: position %d = %s, want %s", i, photo.ID, want[i])
		}
	}

	if _, err := env.service.MovePhoto(ctx, ids[0], "sideways"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestCoreService_DeletePhoto(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")
	photo, _ := env.service.AddPhoto(ctx, memory.ID, "a.png", bytes.NewReader(pngBytes(t, 8, 8)))
	if _, _, err := env.service.OpenPhoto(ctx, photo.ID); err != nil {
		t.Fatal(err)
	}

	if err := env.service.DeletePhoto(ctx, photo.ID); err != nil {
		t.Fatalf("DeletePhoto error: %v", err)
	}
	if _, err := env.service.GetPhoto(ctx, photo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if env.redis.Exists(cache.PhotoKey(photo.ID)) {
		t.Error("Expected cache entry to be removed")
	}
	if names := dirEntries(t, env.config.Storage.LocalDir); len(names) != 0 {
		t.Errorf("Expected stored object and its directories to be removed, got %v", names)
	}
}

func TestCoreService_DeleteMemory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	memory, _ := env.service.CreateMemory(ctx, "u1", "Trip", "")
	for i := 0; i < 2; i++ {
		if _, err := env.service.AddPhoto(ctx, memory.ID, "a.png", bytes.NewReader(pngBytes(t, 8, 8))); err != nil {
			t.Fatal(err)
		}
	}

	if err := env.service.DeleteMemory(ctx, memory.ID); err != nil {
		t.Fatalf("DeleteMemory error: %v", err)
	}
	if _, err := env.service.GetMemory(ctx, memory.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if n := countFiles(t, env.config.Storage.LocalDir); n != 0 {
		t.Errorf("Expected stored objects to be removed, found %d", n)
	}
	if err := env.service.DeleteMemory(ctx, memory.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCoreService_ListMemories(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	if _, err := env.service.CreateMemory(ctx, "u1", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty title, got %v", err)
	}
	if _, err := env.service.CreateMemory(ctx, "../u1", "Trip", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad user id, got %v", err)
	}

	if _, err := env.service.CreateMemory(ctx, "u1", "Trip", "desc"); err != nil {
		t.Fatal(err)
	}
	memories, err := env.service.ListMemories(ctx, "u1")
	if err != nil {
		t.Fatalf("ListMemories error: %v", err)
	}
	if len(memories) != 1 || memories[0].Description != "desc" {
		t.Errorf("unexpected memories %+v", memories)
	}
}

func TestCoreService_CleanupStaging(t *testing.T) {
	env := newTestEnv(t, func(c *ServiceConfig) { c.Processing.StagingMaxAge = time.Hour })

	stale := filepath.Join(env.config.TempPhotosDir, "user_u1", "memory_m1", "left-behind.png")
	fresh := filepath.Join(env.config.TempPhotosDir, "user_u2", "memory_m2", "in-flight.png")
	for _, path := range []string{stale, fresh} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := env.service.CleanupStaging()
	if err != nil {
		t.Fatalf("CleanupStaging error: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(env.config.TempPhotosDir, "user_u1")); !errors.Is(err, os.ErrNotExist) {
		t.Error("Expected stale user directory to be pruned")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("Expected fresh file to remain: %v", err)
	}
}
