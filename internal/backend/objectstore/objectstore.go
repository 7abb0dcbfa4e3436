package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// ErrObjectNotFound is returned by Open and Delete when the key does not exist
var ErrObjectNotFound = errors.New("object not found")

// Info describes a stored object
type Info struct {
	Key          string
	ContentType  string
	Size         int64
	LastModified time.Time
}

// ObjectStore persists processed photos under slash separated keys
type ObjectStore interface {
	// Put publishes the file at path under key. The store takes ownership of the file:
	// after a successful Put the caller must not rely on path still existing.
	Put(ctx context.Context, key, path, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)
	Delete(ctx context.Context, key string) error
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
}

type Config struct {
	Type     string   `yaml:"type"`
	LocalDir string   `yaml:"localDir"`
	S3       S3Config `yaml:"s3"`
}

// New creates the object store selected by cfg.Type
func New(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStore(cfg.LocalDir)
	case TypeS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
