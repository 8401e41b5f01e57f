package llm

import (
	"net/url"
	"strings"
)

// DefaultEndpoint is used when the settings carry no endpoint address
const DefaultEndpoint = "http://127.0.0.1:11434/api/chat"

// NormalizeEndpoint turns a bare host or a full endpoint path into the chat URL.
// A known suffix is never appended twice and a distinct user path is kept.
// Query and fragment are left alone.
func NormalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultEndpoint
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		// Left for the HTTP request to reject
		return endpoint
	}

	path := strings.TrimRight(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/api/chat"), strings.HasSuffix(path, "/chat"):
	case strings.HasSuffix(path, "/api"):
		path += "/chat"
	default:
		path += "/api/chat"
	}
	u.Path = path
	u.RawPath = ""
	return u.String()
}
