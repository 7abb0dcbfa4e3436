package imagecodec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const FormatSVG = "svg"

var (
	// ErrUnsupportedFormat is returned when the data is not an image any registered decoder understands
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooManyPixels is returned when an image declares more pixels than allowed
	ErrTooManyPixels = errors.New("image dimensions too large")
)

// Decode decodes raster images (jpeg, png, gif, bmp, tiff, webp) and rasterises SVG documents.
// The returned format name matches the one used by the image package.
func Decode(data []byte) (image.Image, string, error) {
	if isSVGData(data) {
		img, err := rasterizeSVG(data)
		if errors.Is(err, ErrTooManyPixels) {
			return nil, "", err
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return img, FormatSVG, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// DecodeConfig reads only the image header. SVG documents are parsed fully since their
// size is only known after reading the root element.
func DecodeConfig(r io.Reader) (image.Config, string, error) {
	br := bufio.NewReaderSize(r, svgSniffLen)
	head, err := br.Peek(svgSniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return image.Config{}, "", fmt.Errorf("failed to read image header: %w", err)
	}

	if isSVGData(head) {
		data, err := io.ReadAll(br)
		if err != nil {
			return image.Config{}, "", fmt.Errorf("failed to read SVG: %w", err)
		}
		width, height, err := svgSize(data)
		if err != nil {
			return image.Config{}, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return image.Config{Width: width, Height: height}, FormatSVG, nil
	}

	cfg, format, err := image.DecodeConfig(br)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	return cfg, format, nil
}

// CheckPixels fails with ErrTooManyPixels unless cfg describes a non-empty image of at
// most maxPixels pixels
func CheckPixels(cfg image.Config, maxPixels int64) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnsupportedFormat, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}
