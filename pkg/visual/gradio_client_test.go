package visual

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/eve-companion/pkg/models"
)

// probe counts every request that reaches the transport
type probe struct {
	calls int32
}

func (p *probe) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&p.calls, 1)
	return nil, errors.New("network access not expected")
}

// gradioStub mimics the two-step call API of a Gradio app
type gradioStub struct {
	t        *testing.T
	received []interface{}
	events   string
}

func (s *gradioStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gradio_api/call/predict", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data []interface{} `json:"data"`
		}
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		s.received = body.Data
		_, _ = w.Write([]byte(`{"event_id":"evt-1"}`))
	})
	mux.HandleFunc("GET /gradio_api/call/predict/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(s.t, "evt-1", r.PathValue("id"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(s.events))
	})
	return mux
}

func params() models.ImageParams {
	return models.ImageParams{Strength: 0.6, Guidance: 7, Steps: 30, Seed: 42, RandomizeSeed: true}
}

func TestGradioClient_ParameterContract(t *testing.T) {
	stub := &gradioStub{t: t, events: "event: generating\ndata: null\n\nevent: complete\ndata: [{\"path\":\"/tmp/out.png\",\"url\":\"https://img/1.png\"}, \"done\"]\n\n"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := NewGradioClientWithHTTP(DefaultConfig(), srv.Client(), nil)
	ref, err := client.Synthesize(context.Background(), "a red sports car, studio lighting", srv.URL+"/", params())
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.png", ref)

	// The remote app reads its inputs positionally; the order is the contract.
	require.Len(t, stub.received, 8)
	assert.Equal(t, "a red sports car, studio lighting", stub.received[0])
	assert.Equal(t, "", stub.received[1])
	assert.Nil(t, stub.received[2])
	assert.Equal(t, 0.6, stub.received[3])
	assert.Equal(t, 7.0, stub.received[4])
	assert.Equal(t, 30.0, stub.received[5])
	assert.Equal(t, 42.0, stub.received[6])
	assert.Equal(t, true, stub.received[7])
}

func TestGradioClient_StringResultAndPathFallback(t *testing.T) {
	tests := []struct {
		name   string
		events string
		want   func(base string) string
	}{
		{
			name:   "plain string",
			events: "event: complete\ndata: [\"data:image/png;base64,AAAA\"]\n\n",
			want:   func(string) string { return "data:image/png;base64,AAAA" },
		},
		{
			name:   "path only",
			events: "event: complete\ndata: [{\"path\":\"/tmp/gradio/out.webp\"}]\n\n",
			want:   func(base string) string { return base + "/gradio_api/file=/tmp/gradio/out.webp" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &gradioStub{t: t, events: tt.events}
			srv := httptest.NewServer(stub.handler())
			defer srv.Close()

			ref, err := NewGradioClientWithHTTP(DefaultConfig(), srv.Client(), nil).
				Synthesize(context.Background(), "selfie", srv.URL, params())
			require.NoError(t, err)
			assert.Equal(t, tt.want(srv.URL), ref)
		})
	}
}

func TestGradioClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		events string
	}{
		{"error event", "event: error\ndata: null\n\n"},
		{"empty output", "event: complete\ndata: []\n\n"},
		{"null output", "event: complete\ndata: [null]\n\n"},
		{"stream ends early", "event: generating\ndata: null\n\n"},
		{"number output", "event: complete\ndata: [12]\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &gradioStub{t: t, events: tt.events}
			srv := httptest.NewServer(stub.handler())
			defer srv.Close()

			_, err := NewGradioClientWithHTTP(DefaultConfig(), srv.Client(), nil).
				Synthesize(context.Background(), "selfie", srv.URL, params())
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrSynthesis))
		})
	}
}

func TestGradioClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGradioClientWithHTTP(DefaultConfig(), srv.Client(), nil).
		Synthesize(context.Background(), "selfie", srv.URL, params())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSynthesis))
	assert.True(t, errors.Is(err, models.ErrProtocol))
}

func TestGradioClient_BlankEndpointMakesNoCall(t *testing.T) {
	for _, endpoint := range []string{"", "   ", "\t\n"} {
		p := &probe{}
		client := NewGradioClientWithHTTP(DefaultConfig(), &http.Client{Transport: p}, nil)

		_, err := client.Synthesize(context.Background(), "a prompt", endpoint, params())
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrSynthesis))
		assert.True(t, IsConfigurationError(err))
		assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls), fmt.Sprintf("endpoint %q", endpoint))
	}
}

func TestGradioClient_BlankPromptMakesNoCall(t *testing.T) {
	p := &probe{}
	client := NewGradioClientWithHTTP(DefaultConfig(), &http.Client{Transport: p}, nil)

	_, err := client.Synthesize(context.Background(), "  ", "http://gpu-box:7860", params())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls))
}

func TestGradioClient_TruncatesPrompt(t *testing.T) {
	stub := &gradioStub{t: t, events: "event: complete\ndata: [\"https://img/2.png\"]\n\n"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	long := strings.Repeat("é", 300)
	_, err := NewGradioClientWithHTTP(DefaultConfig(), srv.Client(), nil).
		Synthesize(context.Background(), long, srv.URL, params())
	require.NoError(t, err)

	sent, ok := stub.received[0].(string)
	require.True(t, ok)
	assert.Equal(t, 240, len([]rune(sent)))
}

func TestTruncatePrompt(t *testing.T) {
	assert.Equal(t, "abc", TruncatePrompt("abc", 10))
	assert.Equal(t, "ab", TruncatePrompt("abc", 2))
	assert.Equal(t, "abc", TruncatePrompt("abc", 0))
}
