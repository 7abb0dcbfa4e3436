package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/memories/internal/backend/commandstructure"
)

const CropCommandName = "CropCommand"

// CropParams represents typed parameters for crop command
type CropParams struct {
	Height int
	Width  int
}

// NewCropParamsFromMap creates CropParams from a generic map
func NewCropParamsFromMap(params map[string]any) (*CropParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"height", "width"}); err != nil {
		return nil, err
	}
	return newCropParams(
		commandstructure.GetIntParam(params, "width", 0),
		commandstructure.GetIntParam(params, "height", 0),
	)
}

func newCropParams(width, height int) (*CropParams, error) {
	if height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", height)
	}
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	return &CropParams{Height: height, Width: width}, nil
}

// CropCommand centre-crops an image to the target aspect ratio and scales it to exactly
// the target size. Used for thumbnails.
type CropCommand struct {
	name   string
	params *CropParams
}

// NewCropCommand creates a new crop command from configuration parameters
func NewCropCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCropParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CropCommand{name: CropCommandName, params: typedParams}, nil
}

// NewCropCommandWithParams creates a new crop command from concrete typed parameters
func NewCropCommandWithParams(width, height int) (*CropCommand, error) {
	typedParams, err := newCropParams(width, height)
	if err != nil {
		return nil, err
	}
	return &CropCommand{name: CropCommandName, params: typedParams}, nil
}

// Name returns the command name
func (c *CropCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *CropCommand) GetParams() *CropParams {
	return c.params
}

// Execute crops and scales the image to the configured dimensions
func (c *CropCommand) Execute(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("cannot crop empty image")
	}

	cropRect := centerCropRect(bounds, c.params.Width, c.params.Height)
	if cropRect == bounds && bounds.Dx() == c.params.Width && bounds.Dy() == c.params.Height {
		return img, nil
	}

	slog.Debug("CropCommand: cropping",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"crop_x", cropRect.Min.X,
		"crop_y", cropRect.Min.Y,
		"crop_width", cropRect.Dx(),
		"crop_height", cropRect.Dy(),
		"target_width", c.params.Width,
		"target_height", c.params.Height)

	return scaleTo(img, cropRect, c.params.Width, c.params.Height), nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(CropCommandName, NewCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", CropCommandName, err))
	}
}
