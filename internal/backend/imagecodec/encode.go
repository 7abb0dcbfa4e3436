package imagecodec

import (
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
)

const (
	WebPExtension   = ".webp"
	WebPContentType = "image/webp"
	// DefaultQuality is the lossy WebP quality used when none is configured
	DefaultQuality = 80
)

// EncodeWebP writes img as lossy WebP. Quality is clamped to [1, 100].
func EncodeWebP(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 {
		quality = DefaultQuality
	}
	quality = min(quality, 100)

	if err := webp.Encode(w, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return fmt.Errorf("failed to encode image to WebP: %w", err)
	}
	return nil
}
