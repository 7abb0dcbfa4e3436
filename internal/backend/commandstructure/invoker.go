package commandstructure

import (
	"fmt"
	"image"
	"log/slog"
	"time"
)

// CommandInvoker executes a sequence of commands on a decoded image
type CommandInvoker struct {
	commands []Command
}

// NewCommandInvoker creates a new command invoker
func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

// Commands returns the names of the configured commands in execution order
func (i *CommandInvoker) Commands() []string {
	names := make([]string, 0, len(i.commands))
	for _, command := range i.commands {
		names = append(names, command.Name())
	}
	return names
}

// Execute applies all commands in sequence to the image
func (i *CommandInvoker) Execute(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("cannot process nil image")
	}

	start := time.Now()
	bounds := img.Bounds()
	slog.Debug("starting image processing pipeline",
		"command_count", len(i.commands),
		"input_width", bounds.Dx(),
		"input_height", bounds.Dy())

	if len(i.commands) == 0 {
		slog.Debug("no commands to execute, returning original image")
		return img, nil
	}

	current := img
	for idx, command := range i.commands {
		commandStart := time.Now()

		processed, err := command.Execute(current)
		if err != nil {
			slog.Error("command execution failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err)
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}
		if processed == nil {
			return nil, fmt.Errorf("command %s (index %d) returned no image", command.Name(), idx)
		}

		out := processed.Bounds()
		slog.Debug("command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"output_width", out.Dx(),
			"output_height", out.Dy())

		current = processed
	}

	out := current.Bounds()
	slog.Info("image processing pipeline completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(i.commands),
		"final_width", out.Dx(),
		"final_height", out.Dy())

	return current, nil
}

// ExecuteCommands creates the configured commands from DefaultRegistry and applies them in order
func ExecuteCommands(img image.Image, commandConfigs []CommandConfig) (image.Image, error) {
	commands, err := DefaultRegistry.CreateAll(commandConfigs)
	if err != nil {
		slog.Error("failed to create commands", "error", err)
		return nil, err
	}
	return NewCommandInvoker(commands).Execute(img)
}
