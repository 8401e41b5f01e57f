package models

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Language selects the register the companion speaks in
type Language string

const (
	LanguageEnglish  Language = "english"
	LanguageManglish Language = "manglish"
)

// ParseLanguage maps a stored value to a Language, falling back to english.
func ParseLanguage(s string) Language {
	switch Language(s) {
	case LanguageManglish:
		return LanguageManglish
	default:
		return LanguageEnglish
	}
}

const (
	// DefaultCompletionURL is the local Ollama chat endpoint
	DefaultCompletionURL = "http://localhost:11434/api/chat"
	// DefaultModelName is the model used when the settings carry none
	DefaultModelName = "mannix/llama3.1-8b-abliterated:latest"
)

// GenerationSettings controls both text completion and image synthesis.
// Every field has a default; see DefaultGenerationSettings.
type GenerationSettings struct {
	// Image generation
	Guidance          float64 `json:"guidance" yaml:"guidance"`
	Steps             int     `json:"steps" yaml:"steps"`
	IPAdapterStrength float64 `json:"ipAdapterStrength" yaml:"ipAdapterStrength"`
	LoraStrength      float64 `json:"loraStrength" yaml:"loraStrength"`
	Seed              int64   `json:"seed" yaml:"seed"`
	RandomizeSeed     bool    `json:"randomizeSeed" yaml:"randomizeSeed"`
	UseMagic          bool    `json:"useMagic" yaml:"useMagic"`
	AIImageGeneration bool    `json:"aiImageGeneration" yaml:"aiImageGeneration"`

	// Chat model
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopP          float64 `json:"topP" yaml:"topP"`
	TopK          int     `json:"topK" yaml:"topK"`
	RepeatPenalty float64 `json:"repeatPenalty" yaml:"repeatPenalty"`

	// Local LLM
	LocalLLMURL    string `json:"localLlmUrl" yaml:"localLlmUrl"`
	LocalModelName string `json:"localModelName" yaml:"localModelName"`
}

// DefaultGenerationSettings returns the hard-coded defaults
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		Guidance:          7.0,
		Steps:             30,
		IPAdapterStrength: 0.6,
		LoraStrength:      0.45,
		Seed:              42,
		RandomizeSeed:     true,
		UseMagic:          true,
		AIImageGeneration: true,
		Temperature:       1.0,
		TopP:              0.95,
		TopK:              40,
		RepeatPenalty:     1.1,
		LocalLLMURL:       DefaultCompletionURL,
		LocalModelName:    DefaultModelName,
	}
}

// MergeGenerationSettings overlays a possibly partial JSON blob onto the defaults.
// Fields absent from raw keep their default. On a decode error the defaults are
// returned together with the error.
func MergeGenerationSettings(raw []byte) (GenerationSettings, error) {
	settings := DefaultGenerationSettings()
	if len(raw) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultGenerationSettings(), fmt.Errorf("failed to decode generation settings: %w", err)
	}
	return settings, nil
}

// Validate checks that every numeric field is in a usable range
func (s GenerationSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Guidance, validation.Min(0.0), validation.Max(30.0)),
		validation.Field(&s.Steps, validation.Required, validation.Min(1), validation.Max(150)),
		validation.Field(&s.IPAdapterStrength, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.LoraStrength, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.Seed, validation.Min(int64(0))),
		validation.Field(&s.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&s.TopP, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.TopK, validation.Min(0)),
		validation.Field(&s.RepeatPenalty, validation.Min(0.0), validation.Max(2.0)),
	)
}

// SamplingOptions are the parameters forwarded to the completion endpoint
type SamplingOptions struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
}

// Sampling projects the chat-model fields
func (s GenerationSettings) Sampling() SamplingOptions {
	return SamplingOptions{
		Temperature:   s.Temperature,
		TopP:          s.TopP,
		TopK:          s.TopK,
		RepeatPenalty: s.RepeatPenalty,
	}
}

// ImageParams are the parameters forwarded to the synthesis endpoint
type ImageParams struct {
	Strength      float64
	Guidance      float64
	Steps         int
	Seed          int64
	RandomizeSeed bool
}

// ImageParams projects the image-generation fields
func (s GenerationSettings) ImageParams() ImageParams {
	return ImageParams{
		Strength:      s.IPAdapterStrength,
		Guidance:      s.Guidance,
		Steps:         s.Steps,
		Seed:          s.Seed,
		RandomizeSeed: s.RandomizeSeed,
	}
}
