package commands

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// FitWithin returns the largest dimensions with the source aspect ratio that fit inside
// maxWidth x maxHeight. A bound <= 0 is treated as unbounded. Unless allowEnlarge is set,
// images already inside the bounds keep their size.
func FitWithin(width, height, maxWidth, maxHeight int, allowEnlarge bool) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}

	scale := math.Inf(1)
	if maxWidth > 0 {
		scale = float64(maxWidth) / float64(width)
	}
	if maxHeight > 0 {
		scale = math.Min(scale, float64(maxHeight)/float64(height))
	}
	if math.IsInf(scale, 1) || (scale >= 1 && !allowEnlarge) {
		return width, height
	}

	scaledWidth := int(math.Round(float64(width) * scale))
	scaledHeight := int(math.Round(float64(height) * scale))
	return max(scaledWidth, 1), max(scaledHeight, 1)
}

// centerCropRect returns the largest rectangle inside bounds that has the aspect ratio
// width:height and shares its centre with bounds.
func centerCropRect(bounds image.Rectangle, width, height int) image.Rectangle {
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	targetAspect := float64(width) / float64(height)

	if float64(srcWidth)/float64(srcHeight) > targetAspect {
		// Source is wider - trim left and right
		cropWidth := max(int(math.Round(float64(srcHeight)*targetAspect)), 1)
		x0 := bounds.Min.X + (srcWidth-cropWidth)/2
		return image.Rect(x0, bounds.Min.Y, x0+cropWidth, bounds.Max.Y)
	}

	// Source is taller - trim top and bottom
	cropHeight := max(int(math.Round(float64(srcWidth)/targetAspect)), 1)
	y0 := bounds.Min.Y + (srcHeight-cropHeight)/2
	return image.Rect(bounds.Min.X, y0, bounds.Max.X, y0+cropHeight)
}

// scaleTo resamples the srcRect portion of src into a new width x height RGBA image.
func scaleTo(src image.Image, srcRect image.Rectangle, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcRect, draw.Src, nil)
	return dst
}
