// Package memory maintains the long-term memory summary: a free-text digest of the
// conversation that is injected into every request for continuity beyond the
// model's own context window.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/llm"
	"github.com/andrew/eve-companion/pkg/models"
)

// MinTurns is the shortest history worth summarizing
const MinTurns = 2

const consolidationPrompt = `You are a memory consolidation engine. Merge the conversation you are given into the existing memory in a single pass.

Rules:
1. Keep it concise.
2. Keep durable facts that matter for future continuity: names, likes and dislikes, preferences, recurring topics, relationship dynamics.
3. Leave out greetings and small talk unless they reveal personality.
4. Output ONLY the updated summary text, with no preamble or commentary.

Existing Memory:
%s
`

// Consolidator reduces a conversation plus the existing memory into an updated memory
type Consolidator struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewConsolidator creates a consolidator backed by the completion endpoint
func NewConsolidator(completer llm.Completer, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{completer: completer, logger: logger}
}

// Consolidate makes one completion call and returns the new memory text.
// The result is not capped; callers that want a bound must apply it.
func (c *Consolidator) Consolidate(
	ctx context.Context,
	history []models.Message,
	existingMemory string,
	settings models.GenerationSettings,
) (string, error) {
	if len(history) < MinTurns {
		return "", &models.ConfigurationError{Err: models.ErrNothingToSummarize}
	}

	existing := strings.TrimSpace(existingMemory)
	if existing == "" {
		existing = "None"
	}

	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(consolidationPrompt, existing)},
		{Role: llm.RoleUser, Content: "Summarize this conversation:\n\n" + Transcript(history)},
	}

	start := time.Now()
	summary, err := c.completer.Complete(ctx, llm.RequestFromSettings(messages, settings))
	if err != nil {
		c.logger.Error("memory consolidation failed", zap.Int("turns", len(history)), zap.Error(err))
		return "", &models.ConsolidationError{Err: err}
	}

	summary = strings.TrimSpace(summary)
	c.logger.Info("memory consolidated",
		zap.Int("turns", len(history)),
		zap.Int("previous_chars", len(existingMemory)),
		zap.Int("chars", len(summary)),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// Transcript renders history as "ROLE: text" lines in conversation order.
// Failure notices are left out; they carry no facts about the user.
func Transcript(history []models.Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		if msg.IsError {
			continue
		}
		text := msg.Text
		if strings.TrimSpace(text) == "" && msg.Image != "" {
			text = "[image]"
		}
		lines = append(lines, strings.ToUpper(string(msg.Role))+": "+text)
	}
	return strings.Join(lines, "\n")
}

// ContextBlock renders the memory section appended to the system instruction.
// It returns "" when there is nothing remembered yet.
func ContextBlock(memory string) string {
	memory = strings.TrimSpace(memory)
	if memory == "" {
		return ""
	}
	return "[CORE MEMORY / CONTEXT]:\n" + memory +
		"\n\nUse this memory to keep continuity, but never say that you are recalling it from a memory file or summary. Just know these things."
}
