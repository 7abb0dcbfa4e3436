package commandstructure

import "image"

// Command is a single step of the photo processing pipeline. Commands work on decoded
// images so a pipeline decodes once and encodes once.
type Command interface {
	Name() string
	Execute(img image.Image) (image.Image, error)
}

// CommandFactory creates a command from configuration parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig represents a command configuration with name and parameters
type CommandConfig struct {
	Name   string
	Params map[string]any
}
