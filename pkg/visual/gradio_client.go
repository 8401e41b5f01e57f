package visual

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/models"
)

// maxEventSize bounds one SSE line; results may carry inline base64 images
const maxEventSize = 32 * 1024 * 1024

// GradioClient drives a Gradio app through its HTTP "call" API:
// a POST submits the positional inputs and returns an event id,
// a GET on that id streams server-sent events until the result is complete.
type GradioClient struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// NewGradioClient creates a synthesis client.
// A zero timeout means 10 minutes; diffusion runs are slow on consumer GPUs.
func NewGradioClient(cfg Config, timeout time.Duration, logger *zap.Logger) *GradioClient {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return NewGradioClientWithHTTP(cfg, &http.Client{Timeout: timeout}, logger)
}

// NewGradioClientWithHTTP lets callers supply their own transport
func NewGradioClientWithHTTP(cfg Config, httpClient *http.Client, logger *zap.Logger) *GradioClient {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.APIName) == "" {
		cfg.APIName = defaults.APIName
	}
	cfg.APIName = strings.Trim(cfg.APIName, "/")
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = defaults.MaxPromptChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradioClient{httpClient: httpClient, cfg: cfg, logger: logger}
}

// PredictArgs builds the positional input vector expected by the image app:
// (prompt, negativePrompt, referenceImage, strength, guidance, steps, seed, randomizeSeed).
func PredictArgs(prompt string, params models.ImageParams) []interface{} {
	return []interface{}{
		prompt,               // prompt
		"",                   // negative prompt
		nil,                  // reference image upload
		params.Strength,      // ip-adapter scale
		params.Guidance,      // guidance
		params.Steps,         // steps
		params.Seed,          // seed
		params.RandomizeSeed, // randomize seed
	}
}

// TruncatePrompt cuts prompt to at most limit runes
func TruncatePrompt(prompt string, limit int) string {
	if limit <= 0 {
		return prompt
	}
	runes := []rune(prompt)
	if len(runes) <= limit {
		return prompt
	}
	return string(runes[:limit])
}

// Synthesize generates an image for prompt and returns its reference.
// Every failure is a *models.SynthesisError.
func (c *GradioClient) Synthesize(ctx context.Context, prompt, endpoint string, params models.ImageParams) (string, error) {
	base := strings.TrimSpace(endpoint)
	if base == "" {
		return "", &models.SynthesisError{Err: &models.ConfigurationError{Message: "image endpoint is not set"}}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", &models.SynthesisError{Err: &models.ConfigurationError{Message: "visual prompt is empty"}}
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	prompt = TruncatePrompt(prompt, c.cfg.MaxPromptChars)

	start := time.Now()
	log := c.logger.With(zap.String("endpoint", base), zap.String("api", c.cfg.APIName))

	eventID, err := c.submit(ctx, base, prompt, params)
	if err != nil {
		log.Warn("image request rejected", zap.Error(err))
		return "", &models.SynthesisError{Err: err}
	}

	result, err := c.await(ctx, base, eventID)
	if err != nil {
		log.Warn("image generation failed", zap.String("event_id", eventID), zap.Error(err))
		return "", &models.SynthesisError{Err: err}
	}

	ref, err := imageReference(base, result)
	if err != nil {
		log.Warn("image result unusable", zap.String("event_id", eventID), zap.Error(err))
		return "", &models.SynthesisError{Err: err}
	}

	log.Info("image generated", zap.String("event_id", eventID), zap.Duration("elapsed", time.Since(start)))
	return ref, nil
}

func (c *GradioClient) callURL(base string) string {
	return base + "/gradio_api/call/" + c.cfg.APIName
}

// submit posts the inputs and returns the event id of the queued job
func (c *GradioClient) submit(ctx context.Context, base, prompt string, params models.ImageParams) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{"data": PredictArgs(prompt, params)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	target := c.callURL(base)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
	if err != nil {
		return "", &models.ConfigurationError{Message: fmt.Sprintf("invalid image endpoint %q", base), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &models.NetworkError{Endpoint: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.NetworkError{Endpoint: target, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &models.ProtocolError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var queued struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &queued); err != nil {
		return "", &models.ProtocolError{Message: "malformed call response", Err: err}
	}
	if queued.EventID == "" {
		return "", &models.ProtocolError{Message: "call response has no event_id"}
	}
	return queued.EventID, nil
}

// await reads the event stream for eventID until a complete or error event arrives
func (c *GradioClient) await(ctx context.Context, base, eventID string) (json.RawMessage, error) {
	target := c.callURL(base) + "/" + url.PathEscape(eventID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &models.NetworkError{Endpoint: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &models.ProtocolError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				return json.RawMessage(payload), nil
			case "error":
				return nil, &models.ProtocolError{Message: "image app reported an error: " + payload}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &models.NetworkError{Endpoint: target, Err: err}
	}
	return nil, &models.ProtocolError{Message: "event stream ended without a result"}
}

// imageReference extracts the first output: a plain string or a file object with a url.
func imageReference(base string, result json.RawMessage) (string, error) {
	var outputs []json.RawMessage
	if err := json.Unmarshal(result, &outputs); err != nil {
		return "", &models.ProtocolError{Message: "malformed result data", Err: err}
	}
	if len(outputs) == 0 {
		return "", &models.ProtocolError{Message: "no image returned"}
	}

	var ref string
	if err := json.Unmarshal(outputs[0], &ref); err == nil {
		if ref == "" {
			return "", &models.ProtocolError{Message: "no image returned"}
		}
		return ref, nil
	}

	var file struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(outputs[0], &file); err != nil {
		return "", &models.ProtocolError{Message: "unexpected image output", Err: err}
	}
	switch {
	case file.URL != "":
		return file.URL, nil
	case file.Path != "":
		return base + "/gradio_api/file=" + file.Path, nil
	}
	return "", &models.ProtocolError{Message: "no image returned"}
}

// IsConfigurationError reports whether a synthesis failure happened before any request was made
func IsConfigurationError(err error) bool {
	return errors.Is(err, models.ErrConfiguration)
}
