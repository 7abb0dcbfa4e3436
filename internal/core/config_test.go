package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := writeConfig(t, `port: 9090
tempPhotosDir: /tmp/staging
database:
  type: postgres
  connectionString: "postgres://memories@db/memories"
storage:
  type: s3
  s3:
    endpoint: http://minio:9000
    region: eu-central-1
    bucket: photos
    usePathStyle: true
cache:
  type: redis
  address: redis:6379
  ttl: 10m
processing:
  maxWidth: 1280
  maxHeight: 720
  quality: 70
  thumbnailSize: 128
  maxUploadBytes: 1048576
  workers: 2
  stagingMaxAge: 2h
  commands:
    - name: GrayscaleCommand
`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.Port)
	}
	if config.TempPhotosDir != "/tmp/staging" {
		t.Errorf("Expected tempPhotosDir /tmp/staging, got %s", config.TempPhotosDir)
	}
	if config.Database.Type != "postgres" || config.Database.ConnectionString != "postgres://memories@db/memories" {
		t.Errorf("unexpected database config %+v", config.Database)
	}
	if config.Storage.Type != "s3" || config.Storage.S3.Bucket != "photos" || !config.Storage.S3.UsePathStyle {
		t.Errorf("unexpected storage config %+v", config.Storage)
	}
	if config.Cache.Type != "redis" || config.Cache.TTL != 10*time.Minute {
		t.Errorf("unexpected cache config %+v", config.Cache)
	}
	p := config.Processing
	if p.MaxWidth != 1280 || p.MaxHeight != 720 || p.Quality != 70 || p.ThumbnailSize != 128 ||
		p.MaxUploadBytes != 1048576 || p.Workers != 2 || p.StagingMaxAge != 2*time.Hour {
		t.Errorf("unexpected processing config %+v", p)
	}
	if len(p.Commands) != 1 || p.Commands[0].Name != "GrayscaleCommand" {
		t.Errorf("unexpected commands %+v", p.Commands)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "port: 8080\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.TempPhotosDir != defaultTempPhotosDir {
		t.Errorf("Expected default tempPhotosDir, got %s", config.TempPhotosDir)
	}
	if config.Database.Type != "sqlite" || config.Database.ConnectionString != defaultConnection {
		t.Errorf("unexpected database defaults %+v", config.Database)
	}
	if config.Storage.Type != "local" || config.Storage.LocalDir != defaultLocalDir {
		t.Errorf("unexpected storage defaults %+v", config.Storage)
	}
	if config.Cache.Type != "none" {
		t.Errorf("Expected cache type none, got %s", config.Cache.Type)
	}
	if config.Processing.MaxPixels != defaultMaxPixels {
		t.Errorf("Expected default maxPixels %d, got %d", defaultMaxPixels, config.Processing.MaxPixels)
	}
	if config.Processing.Quality != defaultQuality || config.Processing.Workers != defaultWorkers {
		t.Errorf("unexpected processing defaults %+v", config.Processing)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when file doesn't exist")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "port: [unclosed")); err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"port out of range", "port: 70000", "port"},
		{"quality too high", "processing:\n  quality: 150", "quality"},
		{"negative workers", "processing:\n  workers: -1", "workers"},
		{"upload limit too large", "processing:\n  maxUploadBytes: 9223372036854775807", "maxUploadBytes"},
		{"negative pixel budget", "processing:\n  maxPixels: -5", "maxPixels"},
		{"empty command name", "processing:\n  commands:\n    - width: 1", "empty name"},
		{"duplicate command", "processing:\n  commands:\n    - name: GrayscaleCommand\n    - name: GrayscaleCommand", "duplicate"},
		{"unknown command", "processing:\n  commands:\n    - name: SepiaCommand", "unknown command"},
		{"postgres without connection", "database:\n  type: postgres", "connectionString"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestToCommandConfigs(t *testing.T) {
	configs := toCommandConfigs([]CommandConfig{
		{Name: "ResizeCommand", Params: map[string]any{"maxWidth": 100, "name": "ResizeCommand"}},
	})
	if len(configs) != 1 {
		t.Fatalf("Expected 1 config, got %d", len(configs))
	}
	if _, ok := configs[0].Params["name"]; ok {
		t.Error("Expected name to be stripped from params")
	}
	if configs[0].Params["maxWidth"] != 100 {
		t.Errorf("Expected maxWidth 100, got %v", configs[0].Params["maxWidth"])
	}
}
