// Package orchestrator turns one user message into one companion reply: it builds
// the completion request from history and long-term memory, calls the model, and
// when the reply carries a visual directive, calls the image endpoint.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/llm"
	"github.com/andrew/eve-companion/pkg/memory"
	"github.com/andrew/eve-companion/pkg/models"
	"github.com/andrew/eve-companion/pkg/visual"
)

const (
	// FailedTurnText is shown in the transcript when the model could not be reached
	FailedTurnText = "Connection to Eve failed."

	// VisualFailureNotice is appended to the reply when the picture could not be made
	VisualFailureNotice = "\n\n(I tried to send a photo but the visual synthesis failed.)"
)

// TurnRequest carries everything one turn needs.
// History already contains the new user turn.
type TurnRequest struct {
	UserText       string
	History        []models.Message
	LongTermMemory string
	Settings       models.GenerationSettings
	ImageEndpoint  string
	Language       models.Language
}

// Orchestrator runs turns. It holds no conversation state and persists nothing.
type Orchestrator struct {
	completer   llm.Completer
	synthesizer visual.Synthesizer
	logger      *zap.Logger
}

// New creates an orchestrator
func New(completer llm.Completer, synthesizer visual.Synthesizer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		completer:   completer,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// SubmitTurn runs one turn. Failures are reported inside the response, never returned.
func (o *Orchestrator) SubmitTurn(ctx context.Context, req TurnRequest) models.EveResponse {
	log := o.logger.With(zap.Int("history", len(req.History)), zap.String("language", string(req.Language)))
	start := time.Now()

	messages := BuildMessages(req)
	reply, err := o.completer.Complete(ctx, llm.RequestFromSettings(messages, req.Settings))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = &models.ProtocolError{Message: "empty reply"}
	}
	if err != nil {
		log.Error("completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return models.EveResponse{
			Text:         FailedTurnText,
			IsError:      true,
			ErrorMessage: err.Error(),
			ErrorKind:    models.ErrorKindGeneral,
		}
	}

	directive := ParseDirective(reply)
	log.Info("completion received",
		zap.Int("chars", len(reply)),
		zap.Bool("visual", directive.HasVisual),
		zap.Duration("elapsed", time.Since(start)))

	if !directive.HasVisual {
		return models.EveResponse{Text: directive.Spoken}
	}

	if !req.Settings.AIImageGeneration {
		log.Debug("visual directive ignored, image generation is off")
		return models.EveResponse{Text: directive.Spoken}
	}

	if directive.VisualPrompt == "" {
		log.Warn("visual directive has no description")
		return models.EveResponse{Text: directive.Spoken + VisualFailureNotice}
	}

	imageStart := time.Now()
	image, err := o.synthesizer.Synthesize(ctx, directive.VisualPrompt, req.ImageEndpoint, req.Settings.ImageParams())
	if err != nil {
		if visual.IsConfigurationError(err) {
			log.Warn("visual synthesis skipped", zap.Error(err))
		} else {
			log.Error("visual synthesis failed", zap.Error(err), zap.Duration("elapsed", time.Since(imageStart)))
		}
		return models.EveResponse{Text: directive.Spoken + VisualFailureNotice}
	}

	log.Info("visual attached", zap.Duration("elapsed", time.Since(imageStart)))
	return models.EveResponse{
		Text:         directive.Spoken,
		Image:        image,
		VisualPrompt: directive.VisualPrompt,
	}
}

// SystemInstruction joins the persona with the memory block, if any
func SystemInstruction(lang models.Language, longTermMemory string) string {
	instruction := PersonaInstruction(lang)
	if block := memory.ContextBlock(longTermMemory); block != "" {
		instruction += "\n\n" + block
	}
	return instruction
}

// BuildMessages assembles the completion request: system instruction,
// projected history, then the current user text.
func BuildMessages(req TurnRequest) []llm.ChatMessage {
	projected := ProjectHistory(req.History)

	messages := make([]llm.ChatMessage, 0, len(projected)+2)
	messages = append(messages, llm.ChatMessage{
		Role:    llm.RoleSystem,
		Content: SystemInstruction(req.Language, req.LongTermMemory),
	})
	messages = append(messages, projected...)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: req.UserText})
	return messages
}

// ProjectHistory maps stored turns to completion roles.
// Failure notices and turns without text are dropped; order is kept.
func ProjectHistory(history []models.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.IsError || msg.Text == "" {
			continue
		}
		out = append(out, llm.ChatMessage{Role: completionRole(msg.Role), Content: msg.Text})
	}
	return out
}

func completionRole(role models.Role) string {
	switch role {
	case models.RoleModel:
		return llm.RoleAssistant
	case models.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}
