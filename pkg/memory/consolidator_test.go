package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/eve-companion/pkg/llm"
	"github.com/andrew/eve-companion/pkg/models"
)

type fakeCompleter struct {
	reply    string
	err      error
	calls    int
	requests []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func history() []models.Message {
	return []models.Message{
		{ID: "1", Role: models.RoleModel, Text: "hello world"},
		{ID: "2", Role: models.RoleUser, Text: "I'm Arun, I love filter coffee"},
		{ID: "3", Role: models.RoleModel, Text: "Connection to Eve failed.", IsError: true},
		{ID: "4", Role: models.RoleModel, Text: "Filter coffee? Respect."},
	}
}

func TestConsolidate(t *testing.T) {
	completer := &fakeCompleter{reply: "  - User is Arun.\n- Loves filter coffee.  "}
	c := NewConsolidator(completer, nil)

	settings := models.DefaultGenerationSettings()
	settings.LocalModelName = "llama3.1"

	got, err := c.Consolidate(context.Background(), history(), "Met last week.", settings)
	require.NoError(t, err)
	assert.Equal(t, "- User is Arun.\n- Loves filter coffee.", got)

	require.Equal(t, 1, completer.calls)
	req := completer.requests[0]
	assert.Equal(t, "llama3.1", req.Model)
	assert.Equal(t, settings.LocalLLMURL, req.Endpoint)
	assert.Equal(t, settings.Sampling(), req.Options)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Met last week.")
	assert.Contains(t, req.Messages[0].Content, "Output ONLY")
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Equal(t,
		"Summarize this conversation:\n\nMODEL: hello world\nUSER: I'm Arun, I love filter coffee\nMODEL: Filter coffee? Respect.",
		req.Messages[1].Content)
}

func TestConsolidate_NoExistingMemory(t *testing.T) {
	completer := &fakeCompleter{reply: "facts"}
	_, err := NewConsolidator(completer, nil).Consolidate(context.Background(), history(), "  ", models.DefaultGenerationSettings())
	require.NoError(t, err)
	assert.Contains(t, completer.requests[0].Messages[0].Content, "Existing Memory:\nNone")
}

func TestConsolidate_TooShort(t *testing.T) {
	for _, h := range [][]models.Message{nil, history()[:1]} {
		completer := &fakeCompleter{reply: "unused"}
		_, err := NewConsolidator(completer, nil).Consolidate(context.Background(), h, "old", models.DefaultGenerationSettings())

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrConfiguration))
		assert.True(t, errors.Is(err, models.ErrNothingToSummarize))
		assert.Equal(t, 0, completer.calls)
	}
}

func TestConsolidate_CompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: &models.NetworkError{Endpoint: "http://127.0.0.1:11434/api/chat", Err: errors.New("connection refused")}}
	got, err := NewConsolidator(completer, nil).Consolidate(context.Background(), history(), "old", models.DefaultGenerationSettings())

	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, models.ErrConsolidation))
	assert.True(t, errors.Is(err, models.ErrNetwork))
}

func TestTranscript(t *testing.T) {
	h := []models.Message{
		{Role: models.RoleUser, Text: "look", Image: "data:image/png;base64,AA"},
		{Role: models.RoleUser, Text: "", Image: "data:image/png;base64,BB"},
		{Role: models.RoleSystem, Text: "note"},
	}
	assert.Equal(t, "USER: look\nUSER: [image]\nSYSTEM: note", Transcript(h))
}

func TestContextBlock(t *testing.T) {
	assert.Empty(t, ContextBlock(""))
	assert.Empty(t, ContextBlock(" \n "))

	block := ContextBlock("Arun likes coffee")
	assert.Contains(t, block, "Arun likes coffee")
	assert.Contains(t, block, "never say that you are recalling it")
}
