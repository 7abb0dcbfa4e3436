package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	TypeNone  = "none"
	TypeRedis = "redis"

	DefaultTTL = time.Hour
)

// ImageCache stores encoded images by key. Get reports a miss with ok=false and a nil error.
type ImageCache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

type Config struct {
	Type     string        `yaml:"type"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PhotoKey is the cache key of a full size photo
func PhotoKey(photoID string) string {
	return "photo:" + photoID
}

// ThumbnailKey is the cache key of a photo thumbnail
func ThumbnailKey(photoID string) string {
	return "thumb:" + photoID
}

// New returns the cache selected by cfg.Type
func New(ctx context.Context, cfg Config) (ImageCache, error) {
	switch cfg.Type {
	case TypeNone, "":
		return NoopCache{}, nil
	case TypeRedis:
		return NewRedisCache(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NoopCache never stores anything
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(context.Context, string, []byte) error         { return nil }
func (NoopCache) Delete(context.Context, ...string) error           { return nil }
func (NoopCache) Close() error                                      { return nil }
