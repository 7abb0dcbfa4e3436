package photostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jo-hoe/memories/internal/backend/commandstructure"
	"github.com/jo-hoe/memories/internal/backend/imagecodec"
)

// ErrUnsupportedImage is returned when the input cannot be decoded as an image
var ErrUnsupportedImage = errors.New("unsupported image")

// ProcessedImage describes the file written by ProcessImage
type ProcessedImage struct {
	Filename       string `json:"filename"`
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	OriginalWidth  int    `json:"originalWidth"`
	OriginalHeight int    `json:"originalHeight"`
	Format         string `json:"format"`
}

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// DefaultMaxPixels is the decode budget used when none is configured
const DefaultMaxPixels = 64 << 20

// Processor converts staged uploads into WebP files
type Processor struct {
	invoker   *commandstructure.CommandInvoker
	quality   int
	maxPixels int64
	encode    encodeFunc
}

// NewProcessor creates a processor that runs commands before encoding with the given WebP
// quality. Inputs declaring more than maxPixels pixels are rejected before decoding.
func NewProcessor(commands []commandstructure.Command, quality int, maxPixels int64) *Processor {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Processor{
		invoker:   commandstructure.NewCommandInvoker(commands),
		quality:   quality,
		maxPixels: maxPixels,
		encode:    imagecodec.EncodeWebP,
	}
}

// Commands returns the names of the configured processing steps
func (p *Processor) Commands() []string {
	return p.invoker.Commands()
}

// ProcessImage decodes inputPath, runs the command pipeline and writes
// <outputDir>/<baseName>.webp. On success the input file is removed (unless it is the
// output itself). On failure any partially written output is removed and the input is
// left in place.
func (p *Processor) ProcessImage(ctx context.Context, inputPath, outputDir, baseName string) (*ProcessedImage, error) {
	start := time.Now()
	if baseName == "" || baseName != filepath.Base(baseName) {
		return nil, fmt.Errorf("invalid output base name %q", baseName)
	}
	outputPath := filepath.Join(outputDir, baseName+imagecodec.WebPExtension)

	data, err := os.ReadFile(inputPath)
	if err != nil {
		slog.Error("failed to read input image", "path", inputPath, "error", err)
		return nil, fmt.Errorf("failed to read %s: %w", inputPath, err)
	}

	cfg, format, err := imagecodec.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		err = imagecodec.CheckPixels(cfg, p.maxPixels)
	}
	if err != nil {
		slog.Error("rejected input image", "path", inputPath, "format", format, "width", cfg.Width, "height", cfg.Height, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}

	img, format, err := imagecodec.Decode(data)
	if err != nil {
		slog.Error("failed to decode input image", "path", inputPath, "input_size_bytes", len(data), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	originalBounds := img.Bounds()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	processed, err := p.invoker.Execute(img)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.writeOutput(processed, outputDir, outputPath); err != nil {
		return nil, err
	}

	if filepath.Clean(inputPath) != filepath.Clean(outputPath) {
		if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove original after processing", "path", inputPath, "error", err)
			if rmErr := os.Remove(outputPath); rmErr != nil {
				slog.Error("failed to remove output after cleanup failure", "path", outputPath, "error", rmErr)
			}
			return nil, fmt.Errorf("failed to remove original %s: %w", inputPath, err)
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		slog.Error("failed to stat processed image", "path", outputPath, "error", err)
		return nil, fmt.Errorf("failed to stat %s: %w", outputPath, err)
	}

	result := &ProcessedImage{
		Filename:       filepath.Base(outputPath),
		Path:           outputPath,
		Size:           info.Size(),
		Width:          processed.Bounds().Dx(),
		Height:         processed.Bounds().Dy(),
		OriginalWidth:  originalBounds.Dx(),
		OriginalHeight: originalBounds.Dy(),
		Format:         format,
	}

	slog.Info("image processed",
		"input_format", format,
		"input_size_bytes", len(data),
		"output_size_bytes", result.Size,
		"original_width", result.OriginalWidth,
		"original_height", result.OriginalHeight,
		"width", result.Width,
		"height", result.Height,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// writeOutput encodes into a temporary file in outputDir and renames it over outputPath,
// so outputPath either holds a complete image or does not exist.
func (p *Processor) writeOutput(img image.Image, outputDir, outputPath string) (err error) {
	tmp, err := os.CreateTemp(outputDir, ".processing-*"+imagecodec.WebPExtension)
	if err != nil {
		slog.Error("failed to create output file", "dir", outputDir, "error", err)
		return fmt.Errorf("failed to create output file in %s: %w", outputDir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Error("failed to remove partial output", "path", tmpPath, "error", rmErr)
			}
		}
	}()

	if err := p.encode(tmp, img, p.quality); err != nil {
		_ = tmp.Close()
		slog.Error("failed to encode output image", "path", outputPath, "error", err)
		return fmt.Errorf("failed to encode %s: %w", outputPath, err)
	}
	if err := tmp.Close(); err != nil {
		slog.Error("failed to close output file", "path", tmpPath, "error", err)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		slog.Error("failed to move output into place", "path", outputPath, "error", err)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, outputPath, err)
	}
	return nil
}
