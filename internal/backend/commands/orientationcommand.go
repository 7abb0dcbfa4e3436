package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/memories/internal/backend/commandstructure"
)

const (
	OrientationCommandName = "OrientationCommand"

	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// OrientationParams represents typed parameters for orientation command
type OrientationParams struct {
	Orientation      string
	RotateWhenSquare bool
	Clockwise        bool
}

// NewOrientationParamsFromMap creates OrientationParams from a generic map
func NewOrientationParamsFromMap(params map[string]any) (*OrientationParams, error) {
	orientation := commandstructure.GetStringParam(params, "orientation", OrientationPortrait)
	if orientation != OrientationPortrait && orientation != OrientationLandscape {
		return nil, fmt.Errorf("invalid orientation: %s (must be '%s' or '%s')", orientation, OrientationPortrait, OrientationLandscape)
	}

	return &OrientationParams{
		Orientation:      orientation,
		RotateWhenSquare: commandstructure.GetBoolParam(params, "rotateWhenSquare", false),
		Clockwise:        commandstructure.GetBoolParam(params, "clockwise", true),
	}, nil
}

// OrientationCommand rotates photos by 90 degrees so they match a fixed orientation
type OrientationCommand struct {
	name   string
	params *OrientationParams
}

// NewOrientationCommand creates a new orientation command from configuration parameters
func NewOrientationCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewOrientationParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &OrientationCommand{
		name:   OrientationCommandName,
		params: typedParams,
	}, nil
}

// NewOrientationCommandWithParams creates a clockwise orientation command that leaves square images alone
func NewOrientationCommandWithParams(orientation string) (*OrientationCommand, error) {
	typedParams, err := NewOrientationParamsFromMap(map[string]any{"orientation": orientation})
	if err != nil {
		return nil, err
	}
	return &OrientationCommand{name: OrientationCommandName, params: typedParams}, nil
}

// Name returns the command name
func (c *OrientationCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *OrientationCommand) GetParams() *OrientationParams {
	return c.params
}

// Execute rotates the image when it does not match the configured orientation
func (c *OrientationCommand) Execute(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width == height {
		if !c.params.RotateWhenSquare {
			return img, nil
		}
	} else if (height > width) == (c.params.Orientation == OrientationPortrait) {
		return img, nil
	}

	slog.Debug("rotating image",
		"width", width,
		"height", height,
		"orientation", c.params.Orientation,
		"clockwise", c.params.Clockwise)
	return rotate90(img, c.params.Clockwise), nil
}

// rotate90 returns img rotated by a quarter turn
func rotate90(img image.Image, clockwise bool) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, height, width))

	parallelFor(height, func(y int) {
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			if clockwise {
				// (x,y) -> (height-1-y, x)
				dst.Set(height-1-y, x, c)
			} else {
				// (x,y) -> (y, width-1-x)
				dst.Set(y, width-1-x, c)
			}
		}
	})
	return dst
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(OrientationCommandName, NewOrientationCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", OrientationCommandName, err))
	}
}
