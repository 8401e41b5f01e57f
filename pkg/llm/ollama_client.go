package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/models"
)

// FallbackModel is sent when the request names no model
const FallbackModel = "llama3.1"

// maxErrorBody bounds how much of a failed response we read for the error message
const maxErrorBody = 64 * 1024

// OllamaClient talks to the Ollama /api/chat endpoint.
// Each Complete call issues exactly one HTTP request; retries are the caller's business.
type OllamaClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOllamaClient creates a client for a local Ollama server.
// A zero timeout means the 5 minute default used for long generations.
func NewOllamaClient(timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewOllamaClientWithHTTP lets callers supply their own transport
func NewOllamaClientWithHTTP(httpClient *http.Client, logger *zap.Logger) *OllamaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{httpClient: httpClient, logger: logger}
}

// chatResponse is the subset of the /api/chat reply we rely on
type chatResponse struct {
	Message *api.Message `json:"message"`
	Error   string       `json:"error,omitempty"`
}

// Complete sends the conversation and returns the generated text
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	endpoint := NormalizeEndpoint(req.Endpoint)
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = FallbackModel
	}

	// Convert our messages to Ollama format
	ollamaMessages := make([]api.Message, len(req.Messages))
	for i, msg := range req.Messages {
		ollamaMessages[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	stream := false
	chatReq := api.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature":    req.Options.Temperature,
			"top_p":          req.Options.TopP,
			"top_k":          req.Options.TopK,
			"repeat_penalty": req.Options.RepeatPenalty,
		},
	}

	reqBody, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", &models.ConfigurationError{Message: fmt.Sprintf("invalid completion endpoint %q", endpoint), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.logger.Debug("sending chat request",
		zap.String("endpoint", endpoint),
		zap.String("model", model),
		zap.Int("messages", len(ollamaMessages)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &models.NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := errorMessage(body)
		c.logger.Warn("chat request failed",
			zap.String("endpoint", endpoint),
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg))

		if resp.StatusCode == http.StatusNotFound {
			return "", &models.ModelNotFoundError{Model: model, Message: msg}
		}
		return "", &models.ProtocolError{StatusCode: resp.StatusCode, Message: msg}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.NetworkError{Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &models.ProtocolError{Message: "malformed chat response", Err: err}
	}
	if chatResp.Error != "" {
		return "", &models.ProtocolError{Message: chatResp.Error}
	}
	if chatResp.Message == nil {
		return "", &models.ProtocolError{Message: "chat response has no message field"}
	}
	if strings.TrimSpace(chatResp.Message.Content) == "" {
		return "", &models.ProtocolError{Message: "empty reply"}
	}

	c.logger.Debug("chat request completed",
		zap.String("model", model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(chatResp.Message.Content)))

	return chatResp.Message.Content, nil
}

// errorMessage pulls {"error": "..."} out of a failed response, falling back to the raw body
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

// IsModelNotFound reports whether err means the configured model is missing
func IsModelNotFound(err error) bool {
	return errors.Is(err, models.ErrModelNotFound)
}
