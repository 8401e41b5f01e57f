package models

import (
	"errors"
	"fmt"
)

// Sentinel errors, use with errors.Is()
var (
	ErrNetwork            = errors.New("network error")
	ErrProtocol           = errors.New("protocol error")
	ErrModelNotFound      = errors.New("model not found")
	ErrConfiguration      = errors.New("configuration error")
	ErrSynthesis          = errors.New("visual synthesis failed")
	ErrConsolidation      = errors.New("memory consolidation failed")
	ErrNothingToSummarize = errors.New("not enough conversation to summarize")
	ErrTurnInFlight       = errors.New("a turn is already in flight")
	ErrEmptyInput         = errors.New("message is empty")
)

// NetworkError indicates the endpoint could not be reached
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("could not reach %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error        { return e.Err }
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ProtocolError indicates a non-2xx status or an unusable payload
type ProtocolError struct {
	StatusCode int // 0 when the status was fine but the body was not
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("unexpected response: %s", msg)
}

func (e *ProtocolError) Unwrap() error        { return e.Err }
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// ModelNotFoundError indicates the completion endpoint does not have the model installed
type ModelNotFoundError struct {
	Model   string
	Message string
}

func (e *ModelNotFoundError) Error() string {
	msg := fmt.Sprintf("model %q is not installed on the completion endpoint (try: ollama pull %s)", e.Model, e.Model)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is matches both ErrModelNotFound and ErrProtocol
func (e *ModelNotFoundError) Is(target error) bool {
	return target == ErrModelNotFound || target == ErrProtocol
}

// ConfigurationError indicates a missing setting or an unmet precondition
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SynthesisError wraps any failure of the image-generation path
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("visual synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error        { return e.Err }
func (e *SynthesisError) Is(target error) bool { return target == ErrSynthesis }

// ConsolidationError wraps a failed memory consolidation
type ConsolidationError struct {
	Err error
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("failed to consolidate memories: %v", e.Err)
}

func (e *ConsolidationError) Unwrap() error        { return e.Err }
func (e *ConsolidationError) Is(target error) bool { return target == ErrConsolidation }
