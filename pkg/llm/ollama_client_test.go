package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/eve-companion/pkg/models"
)

func testRequest(endpoint string) CompletionRequest {
	return CompletionRequest{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "be nice"},
			{Role: RoleUser, Content: "hi"},
		},
		Model:    "llama3.1",
		Endpoint: endpoint,
		Options: models.SamplingOptions{
			Temperature:   0.9,
			TopP:          0.95,
			TopK:          40,
			RepeatPenalty: 1.1,
		},
	}
}

func TestOllamaClient_Complete(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"  Hi there  "},"done":true}`))
	}))
	defer srv.Close()

	client := NewOllamaClientWithHTTP(srv.Client(), nil)
	text, err := client.Complete(context.Background(), testRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "  Hi there  ", text)

	assert.Equal(t, "llama3.1", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[1].Content)
	assert.InDelta(t, 0.9, got.Options["temperature"], 1e-9)
	assert.InDelta(t, 0.95, got.Options["top_p"], 1e-9)
	assert.InDelta(t, 40, got.Options["top_k"], 1e-9)
	assert.InDelta(t, 1.1, got.Options["repeat_penalty"], 1e-9)
}

func TestOllamaClient_BlankModelFallsBack(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		model = req.Model
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	req := testRequest(srv.URL + "/api/chat")
	req.Model = "  "
	_, err := NewOllamaClientWithHTTP(srv.Client(), nil).Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, FallbackModel, model)
}

func TestOllamaClient_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"ghost-model\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	req := testRequest(srv.URL)
	req.Model = "ghost-model"
	_, err := NewOllamaClientWithHTTP(srv.Client(), nil).Complete(context.Background(), req)
	require.Error(t, err)

	var notFound *models.ModelNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "ghost-model", notFound.Model)
	assert.Contains(t, err.Error(), `"ghost-model"`)
	assert.True(t, IsModelNotFound(err))
	assert.False(t, errors.Is(err, models.ErrNetwork))
}

func TestOllamaClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"out of memory"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaClientWithHTTP(srv.Client(), nil).Complete(context.Background(), testRequest(srv.URL))
	require.Error(t, err)

	var protoErr *models.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, http.StatusInternalServerError, protoErr.StatusCode)
	assert.Equal(t, "out of memory", protoErr.Message)
	assert.False(t, IsModelNotFound(err))
}

func TestOllamaClient_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"missing message", `{"model":"llama3.1","done":true}`},
		{"error field", `{"error":"something broke"}`},
		{"empty content", `{"message":{"role":"assistant","content":""}}`},
		{"blank content", `{"message":{"role":"assistant","content":"  \n"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOllamaClientWithHTTP(srv.Client(), nil).Complete(context.Background(), testRequest(srv.URL))
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrProtocol))
		})
	}
}

func TestOllamaClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	_, err := NewOllamaClient(0, nil).Complete(context.Background(), testRequest(endpoint))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNetwork))
}

func TestOllamaClient_NoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaClientWithHTTP(srv.Client(), nil).Complete(context.Background(), testRequest(srv.URL))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
