package commands

import (
	"fmt"
	"image"
	"image/color"

	"github.com/jo-hoe/memories/internal/backend/commandstructure"
)

const GrayscaleCommandName = "GrayscaleCommand"

// GrayscaleCommand converts an image to luminance only, keeping its alpha channel
type GrayscaleCommand struct {
	name string
}

// NewGrayscaleCommand creates a new grayscale command; it takes no parameters
func NewGrayscaleCommand(params map[string]any) (commandstructure.Command, error) {
	return &GrayscaleCommand{name: GrayscaleCommandName}, nil
}

// Name returns the command name
func (c *GrayscaleCommand) Name() string {
	return c.name
}

// Execute converts every pixel using the standard luma weights
func (c *GrayscaleCommand) Execute(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	parallelFor(bounds.Dy(), func(y int) {
		for x := 0; x < bounds.Dx(); x++ {
			src := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			// GrayModel works on premultiplied values, so Y never exceeds alpha
			gray := color.GrayModel.Convert(src).(color.Gray)
			_, _, _, a := src.RGBA()
			dst.SetRGBA(x, y, color.RGBA{R: gray.Y, G: gray.Y, B: gray.Y, A: uint8(a >> 8)})
		}
	})

	return dst, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(GrayscaleCommandName, NewGrayscaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", GrayscaleCommandName, err))
	}
}
