package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/andrew/eve-companion/pkg/models"
)

// Settings returns the current generation settings
func (s *Service) Settings() models.GenerationSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies fn to a copy of the settings, validates and saves the result.
// Nothing changes when fn, validation or the write fails.
func (s *Service) UpdateSettings(ctx context.Context, fn func(*models.GenerationSettings) error) (models.GenerationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.settings
	if err := fn(&updated); err != nil {
		return s.settings, &models.ConfigurationError{Message: fmt.Sprintf("invalid settings: %v", err), Err: err}
	}
	if err := updated.Validate(); err != nil {
		return s.settings, &models.ConfigurationError{Message: fmt.Sprintf("invalid settings: %v", err), Err: err}
	}
	if err := s.store.SaveGenerationSettings(ctx, updated); err != nil {
		return s.settings, err
	}
	s.settings = updated
	return updated, nil
}

// ReplaceSettings overlays a partial JSON object onto the current settings.
// Unknown fields are rejected.
func (s *Service) ReplaceSettings(ctx context.Context, raw []byte) (models.GenerationSettings, error) {
	return s.UpdateSettings(ctx, func(gs *models.GenerationSettings) error {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		return dec.Decode(gs)
	})
}

// SetSetting changes one field by its JSON name, e.g. "temperature" or "localModelName".
// The value is read as a JSON literal, falling back to a plain string.
func (s *Service) SetSetting(ctx context.Context, key, value string) (models.GenerationSettings, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return s.Settings(), &models.ConfigurationError{Message: "setting name is empty"}
	}

	literal := strings.TrimSpace(value)
	var typeErr *json.UnmarshalTypeError
	if json.Valid([]byte(literal)) {
		settings, err := s.ReplaceSettings(ctx, []byte(fmt.Sprintf("{%q:%s}", key, literal)))
		if err == nil || !errors.As(err, &typeErr) || typeErr.Type.Kind() != reflect.String {
			return settings, err
		}
	}
	return s.ReplaceSettings(ctx, []byte(fmt.Sprintf("{%q:%s}", key, strconv.Quote(value))))
}

// ResetSettings restores the defaults
func (s *Service) ResetSettings(ctx context.Context) (models.GenerationSettings, error) {
	return s.UpdateSettings(ctx, func(gs *models.GenerationSettings) error {
		*gs = models.DefaultGenerationSettings()
		return nil
	})
}

// SetImageEndpoint stores the image app URL; blank disables pictures
func (s *Service) SetImageEndpoint(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SaveImageEndpoint(ctx, endpoint); err != nil {
		return err
	}
	s.imageEndpoint = endpoint
	s.noticeLocked(NoticeSuccess, "Image endpoint updated")
	return nil
}

// SetLanguage switches the reply language
func (s *Service) SetLanguage(ctx context.Context, lang models.Language) error {
	lang = models.ParseLanguage(string(lang))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SaveLanguage(ctx, lang); err != nil {
		return err
	}
	s.language = lang
	return nil
}
