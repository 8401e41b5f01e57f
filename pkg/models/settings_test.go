package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeGenerationSettings_PartialBlob(t *testing.T) {
	got, err := MergeGenerationSettings([]byte(`{"temperature": 1.5}`))
	require.NoError(t, err)

	want := DefaultGenerationSettings()
	want.Temperature = 1.5
	assert.Equal(t, want, got)
}

func TestMergeGenerationSettings_EmptyAndMalformed(t *testing.T) {
	got, err := MergeGenerationSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGenerationSettings(), got)

	got, err = MergeGenerationSettings([]byte(`{"temperature":`))
	require.Error(t, err)
	assert.Equal(t, DefaultGenerationSettings(), got)
}

func TestMergeGenerationSettings_UnknownFieldsIgnored(t *testing.T) {
	got, err := MergeGenerationSettings([]byte(`{"someFutureField": true, "steps": 12}`))
	require.NoError(t, err)
	assert.Equal(t, 12, got.Steps)
	assert.Equal(t, DefaultGenerationSettings().Guidance, got.Guidance)
}

func TestGenerationSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultGenerationSettings().Validate())

	s := DefaultGenerationSettings()
	s.Temperature = 3
	assert.Error(t, s.Validate())

	s = DefaultGenerationSettings()
	s.Steps = 0
	assert.Error(t, s.Validate())

	s = DefaultGenerationSettings()
	s.TopP = 1.2
	assert.Error(t, s.Validate())
}

func TestParseLanguage(t *testing.T) {
	assert.Equal(t, LanguageManglish, ParseLanguage("manglish"))
	assert.Equal(t, LanguageEnglish, ParseLanguage("english"))
	assert.Equal(t, LanguageEnglish, ParseLanguage(""))
	assert.Equal(t, LanguageEnglish, ParseLanguage("klingon"))
}

func TestErrorTaxonomy(t *testing.T) {
	notFound := &ModelNotFoundError{Model: "llama3.1"}
	assert.True(t, errors.Is(notFound, ErrModelNotFound))
	assert.True(t, errors.Is(notFound, ErrProtocol))
	assert.Contains(t, notFound.Error(), "llama3.1")

	synth := &SynthesisError{Err: &ConfigurationError{Message: "endpoint is not set"}}
	assert.True(t, errors.Is(synth, ErrSynthesis))
	assert.True(t, errors.Is(synth, ErrConfiguration))

	short := &ConfigurationError{Err: ErrNothingToSummarize}
	assert.True(t, errors.Is(short, ErrNothingToSummarize))
	assert.Equal(t, ErrNothingToSummarize.Error(), short.Error())
}

func TestEveResponseToMessage(t *testing.T) {
	msg := EveResponse{Text: "Here you go", Image: "https://img/1.png"}.ToMessage()
	assert.Equal(t, RoleModel, msg.Role)
	assert.Equal(t, "https://img/1.png", msg.Image)
	assert.False(t, msg.IsError)
	assert.NotEmpty(t, msg.ID)

	failed := EveResponse{Text: "Connection to Eve failed.", IsError: true}.ToMessage()
	assert.True(t, failed.IsError)
	assert.NotEqual(t, msg.ID, failed.ID)
}
