package llm

import (
	"context"

	"github.com/andrew/eve-companion/pkg/models"
)

// Role values understood by the completion endpoint
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer is the interface for the chat-completion endpoint
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ChatMessage is one role-tagged entry of a completion request
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest holds everything needed for one completion call
type CompletionRequest struct {
	Messages []ChatMessage
	Model    string
	Endpoint string
	Options  models.SamplingOptions
}

// RequestFromSettings fills model, endpoint and sampling parameters from the user's settings
func RequestFromSettings(messages []ChatMessage, settings models.GenerationSettings) CompletionRequest {
	return CompletionRequest{
		Messages: messages,
		Model:    settings.LocalModelName,
		Endpoint: settings.LocalLLMURL,
		Options:  settings.Sampling(),
	}
}
