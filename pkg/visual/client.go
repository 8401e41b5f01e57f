// Package visual wraps the image-generation endpoint used for the companion's
// "shared scene" pictures.
package visual

import (
	"context"

	"github.com/andrew/eve-companion/pkg/models"
)

// Synthesizer turns a text prompt into an image reference (URL or data URI)
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt, endpoint string, params models.ImageParams) (string, error)
}

// Config contains configuration for the synthesis client
type Config struct {
	// APIName is the Gradio endpoint name, without the leading slash
	APIName string

	// MaxPromptChars caps the prompt length before submission
	MaxPromptChars int
}

// DefaultConfig returns the settings matching the companion's image server
func DefaultConfig() Config {
	return Config{
		APIName:        "predict",
		MaxPromptChars: 240,
	}
}
