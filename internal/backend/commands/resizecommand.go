package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/memories/internal/backend/commandstructure"
)

const ResizeCommandName = "ResizeCommand"

// ResizeParams represents typed parameters for the resize command
type ResizeParams struct {
	MaxWidth     int
	MaxHeight    int
	AllowEnlarge bool
}

// NewResizeParamsFromMap creates ResizeParams from a generic map
func NewResizeParamsFromMap(params map[string]any) (*ResizeParams, error) {
	return newResizeParams(
		commandstructure.GetIntParam(params, "maxWidth", 0),
		commandstructure.GetIntParam(params, "maxHeight", 0),
		commandstructure.GetBoolParam(params, "allowEnlarge", false),
	)
}

func newResizeParams(maxWidth, maxHeight int, allowEnlarge bool) (*ResizeParams, error) {
	if maxWidth < 0 {
		return nil, fmt.Errorf("maxWidth must not be negative, got %d", maxWidth)
	}
	if maxHeight < 0 {
		return nil, fmt.Errorf("maxHeight must not be negative, got %d", maxHeight)
	}
	if maxWidth == 0 && maxHeight == 0 {
		return nil, fmt.Errorf("at least one of maxWidth or maxHeight must be positive")
	}
	return &ResizeParams{
		MaxWidth:     maxWidth,
		MaxHeight:    maxHeight,
		AllowEnlarge: allowEnlarge,
	}, nil
}

// ResizeCommand fits an image inside a bounding box while preserving its aspect ratio
type ResizeCommand struct {
	name   string
	params *ResizeParams
}

// NewResizeCommand creates a new resize command from configuration parameters
func NewResizeCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewResizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ResizeCommand{name: ResizeCommandName, params: typedParams}, nil
}

// NewResizeCommandWithParams creates a new resize command from concrete typed parameters
func NewResizeCommandWithParams(maxWidth, maxHeight int, allowEnlarge bool) (*ResizeCommand, error) {
	typedParams, err := newResizeParams(maxWidth, maxHeight, allowEnlarge)
	if err != nil {
		return nil, err
	}
	return &ResizeCommand{name: ResizeCommandName, params: typedParams}, nil
}

// Name returns the command name
func (c *ResizeCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *ResizeCommand) GetParams() *ResizeParams {
	return c.params
}

// Execute resizes the image to fit the configured bounds
func (c *ResizeCommand) Execute(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("cannot resize empty image")
	}

	width, height := FitWithin(bounds.Dx(), bounds.Dy(), c.params.MaxWidth, c.params.MaxHeight, c.params.AllowEnlarge)
	if width == bounds.Dx() && height == bounds.Dy() {
		slog.Debug("ResizeCommand: image already within bounds; skipping",
			"width", width,
			"height", height)
		return img, nil
	}

	slog.Debug("ResizeCommand: resizing",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", width,
		"target_height", height)

	return scaleTo(img, bounds, width, height), nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(ResizeCommandName, NewResizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", ResizeCommandName, err))
	}
}
