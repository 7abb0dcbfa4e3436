package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a memory or photo does not exist
var ErrNotFound = errors.New("not found")

type DatabaseService interface {
	// CreateDatabase creates tables and indexes if they do not exist yet
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	CreateMemory(ctx context.Context, userID, title, description string) (*Memory, error)
	GetMemory(ctx context.Context, id string) (*Memory, error)
	// ListMemories returns the memories of a user, newest first
	ListMemories(ctx context.Context, userID string) ([]*Memory, error)
	// DeleteMemory removes the memory row and all of its photo rows in one transaction
	DeleteMemory(ctx context.Context, id string) error

	// CreatePhoto assigns ID, CreatedAt and a rank after the last photo of the memory
	CreatePhoto(ctx context.Context, photo *Photo) (*Photo, error)
	GetPhoto(ctx context.Context, id string) (*Photo, error)
	// ListPhotos returns the photos of a memory in rank order
	ListPhotos(ctx context.Context, memoryID string) ([]*Photo, error)
	DeletePhoto(ctx context.Context, id string) error
	// UpdatePhotoRanks applies id -> rank updates in a single transaction
	UpdatePhotoRanks(ctx context.Context, ranks map[string]string) error
}
