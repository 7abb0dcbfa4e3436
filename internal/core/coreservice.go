package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jo-hoe/memories/internal/backend/cache"
	"github.com/jo-hoe/memories/internal/backend/commands"
	"github.com/jo-hoe/memories/internal/backend/commandstructure"
	"github.com/jo-hoe/memories/internal/backend/database"
	"github.com/jo-hoe/memories/internal/backend/objectstore"
	"github.com/jo-hoe/memories/internal/backend/photostore"
)

var (
	// ErrInvalidInput is returned for malformed ids, titles or move directions
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooLarge is returned when an upload exceeds processing.maxUploadBytes
	ErrTooLarge = errors.New("upload too large")
	// ErrUnsupportedMediaType is returned when an upload is not a decodable image
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrProcessingPanic is returned when processing an upload panicked
	ErrProcessingPanic = errors.New("photo processing panicked")
	// ErrNotFound aliases the database sentinel so callers only need this package
	ErrNotFound = database.ErrNotFound
)

type CoreService struct {
	config    *ServiceConfig
	database  database.DatabaseService
	store     objectstore.ObjectStore
	cache     cache.ImageCache
	processor *photostore.Processor
	thumbnail []commandstructure.CommandConfig

	// Uploads hold the read lock while files live in the staging tree,
	// pruning empty staging directories takes the write lock.
	staging sync.RWMutex
}

// NewCoreService wires the database, object store and cache selected in config
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(ctx, config)
	if err != nil {
		return nil, err
	}

	store, err := objectstore.New(ctx, config.Storage)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	imageCache, err := cache.New(ctx, config.Cache)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	service, err := NewCoreServiceWithDependencies(config, databaseService, store, imageCache)
	if err != nil {
		_ = databaseService.Close()
		_ = imageCache.Close()
		return nil, err
	}
	return service, nil
}

// NewCoreServiceWithDependencies builds the service around already constructed backends
func NewCoreServiceWithDependencies(config *ServiceConfig, db database.DatabaseService, store objectstore.ObjectStore, imageCache cache.ImageCache) (*CoreService, error) {
	if _, err := photostore.EnsureDir(config.TempPhotosDir); err != nil {
		return nil, fmt.Errorf("failed to prepare temp photos directory: %w", err)
	}

	processor, err := newProcessor(config.Processing)
	if err != nil {
		return nil, err
	}

	thumbnail := thumbnailCommands(config.Processing.ThumbnailSize)
	if _, err := commandstructure.DefaultRegistry.CreateAll(thumbnail); err != nil {
		return nil, fmt.Errorf("invalid thumbnail size: %w", err)
	}

	slog.Info("core service initialized",
		"temp_photos_dir", config.TempPhotosDir,
		"storage", config.Storage.Type,
		"cache", config.Cache.Type,
		"pipeline", processor.Commands())

	return &CoreService{
		config:    config,
		database:  db,
		store:     store,
		cache:     imageCache,
		processor: processor,
		thumbnail: thumbnail,
	}, nil
}

// newProcessor builds the upload pipeline: bounding-box resize followed by the configured commands
func newProcessor(processing Processing) (*photostore.Processor, error) {
	resize, err := commands.NewResizeCommandWithParams(processing.MaxWidth, processing.MaxHeight, false)
	if err != nil {
		return nil, fmt.Errorf("invalid resize bounds: %w", err)
	}

	configured, err := commandstructure.DefaultRegistry.CreateAll(toCommandConfigs(processing.Commands))
	if err != nil {
		return nil, fmt.Errorf("failed to create processing commands: %w", err)
	}

	pipeline := append([]commandstructure.Command{resize}, configured...)
	return photostore.NewProcessor(pipeline, processing.Quality, processing.MaxPixels), nil
}

// thumbnailCommands crops the centre square of a photo and scales it to size
func thumbnailCommands(size int) []commandstructure.CommandConfig {
	return []commandstructure.CommandConfig{{
		Name:   commands.CropCommandName,
		Params: map[string]any{"width": size, "height": size},
	}}
}

func getDatabaseService(ctx context.Context, config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// Config returns the active configuration
func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Ping reports whether the database is reachable
func (service *CoreService) Ping(ctx context.Context) error {
	if !service.database.DoesDatabaseExist(ctx) {
		return fmt.Errorf("database is not reachable")
	}
	return nil
}

func (service *CoreService) Close() error {
	return errors.Join(service.cache.Close(), service.database.Close())
}
