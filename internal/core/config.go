package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/memories/internal/backend/cache"
	"github.com/jo-hoe/memories/internal/backend/commandstructure"
	"github.com/jo-hoe/memories/internal/backend/database"
	"github.com/jo-hoe/memories/internal/backend/objectstore"
	"github.com/jo-hoe/memories/internal/backend/photostore"
)

const (
	defaultPort           = 8080
	defaultTempPhotosDir  = "temp_photos"
	defaultConnection     = "memories.db"
	defaultLocalDir       = "photos"
	defaultMaxWidth       = 1920
	defaultMaxHeight      = 1920
	defaultQuality        = 80
	defaultThumbnailSize  = 256
	defaultMaxUploadBytes = 20 << 20
	defaultWorkers        = 4
	defaultStagingMaxAge  = 24 * time.Hour
	defaultMaxPixels      = photostore.DefaultMaxPixels

	// maxUploadBytesLimit keeps the per-request body limit (maxUploadBytes times the files
	// per request) far from int64 overflow
	maxUploadBytesLimit = 1 << 30
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Processing struct {
	MaxWidth       int   `yaml:"maxWidth"`
	MaxHeight      int   `yaml:"maxHeight"`
	Quality        int   `yaml:"quality"`
	ThumbnailSize  int   `yaml:"thumbnailSize"`
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
	// MaxPixels bounds width*height of an upload, checked from the header before decoding
	MaxPixels int64 `yaml:"maxPixels"`
	Workers        int   `yaml:"workers"`
	// StagingMaxAge is the age after which leftover staged uploads are swept at startup
	StagingMaxAge time.Duration `yaml:"stagingMaxAge"`
	// Commands run after the resize step, in order
	Commands []CommandConfig `yaml:"commands"`
}

type ServiceConfig struct {
	Port          int                `yaml:"port"`
	TempPhotosDir string             `yaml:"tempPhotosDir"`
	Database      Database           `yaml:"database"`
	Storage       objectstore.Config `yaml:"storage"`
	Cache         cache.Config       `yaml:"cache"`
	Processing    Processing         `yaml:"processing"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

// ApplyDefaults fills every unset value
func (c *ServiceConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.TempPhotosDir == "" {
		c.TempPhotosDir = defaultTempPhotosDir
	}
	if c.Database.Type == "" {
		c.Database.Type = database.TypeSQLite
	}
	if c.Database.ConnectionString == "" && c.Database.Type == database.TypeSQLite {
		c.Database.ConnectionString = defaultConnection
	}
	if c.Storage.Type == "" {
		c.Storage.Type = objectstore.TypeLocal
	}
	if c.Storage.Type == objectstore.TypeLocal && c.Storage.LocalDir == "" {
		c.Storage.LocalDir = defaultLocalDir
	}
	if c.Cache.Type == "" {
		c.Cache.Type = cache.TypeNone
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = cache.DefaultTTL
	}

	p := &c.Processing
	if p.MaxWidth == 0 && p.MaxHeight == 0 {
		p.MaxWidth = defaultMaxWidth
		p.MaxHeight = defaultMaxHeight
	}
	if p.Quality == 0 {
		p.Quality = defaultQuality
	}
	if p.ThumbnailSize == 0 {
		p.ThumbnailSize = defaultThumbnailSize
	}
	if p.MaxUploadBytes == 0 {
		p.MaxUploadBytes = defaultMaxUploadBytes
	}
	if p.MaxPixels == 0 {
		p.MaxPixels = defaultMaxPixels
	}
	if p.Workers == 0 {
		p.Workers = defaultWorkers
	}
	if p.StagingMaxAge == 0 {
		p.StagingMaxAge = defaultStagingMaxAge
	}
}

// Validate checks ranges and command definitions
func (c *ServiceConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connectionString must be set for %s", c.Database.Type)
	}
	p := c.Processing
	if p.MaxWidth < 0 || p.MaxHeight < 0 {
		return fmt.Errorf("processing maxWidth and maxHeight must not be negative")
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("processing quality must be between 1 and 100, got %d", p.Quality)
	}
	if p.ThumbnailSize < 1 {
		return fmt.Errorf("processing thumbnailSize must be positive, got %d", p.ThumbnailSize)
	}
	if p.MaxUploadBytes < 1 || p.MaxUploadBytes > maxUploadBytesLimit {
		return fmt.Errorf("processing maxUploadBytes must be between 1 and %d, got %d", maxUploadBytesLimit, p.MaxUploadBytes)
	}
	if p.MaxPixels < 1 {
		return fmt.Errorf("processing maxPixels must be positive, got %d", p.MaxPixels)
	}
	if p.Workers < 1 {
		return fmt.Errorf("processing workers must be positive, got %d", p.Workers)
	}

	if err := validateCommands(p.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command %s at index %d, available: %v",
				cmd.Name, i, commandstructure.DefaultRegistry.GetRegisteredNames())
		}
	}

	return nil
}

// toCommandConfigs converts the YAML command list to registry configs
func toCommandConfigs(commands []CommandConfig) []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(commands))
	for _, cmd := range commands {
		params := make(map[string]any, len(cmd.Params))
		for k, v := range cmd.Params {
			if k != "name" {
				params[k] = v
			}
		}
		configs = append(configs, commandstructure.CommandConfig{Name: cmd.Name, Params: params})
	}
	return configs
}
