// Package store persists the companion's single conversation and the user's
// preferences in a local key-value database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/models"
)

// Namespaces
const (
	NamespaceSessions    = "sessions"
	NamespacePreferences = "preferences"
)

// Preference keys
const (
	KeyLanguage           = "eve_language"
	KeyGenerationSettings = "eve_gen_settings"
	KeyImageEndpoint      = "eve_gradio_url"
)

// ErrClosed is returned by backends after Close
var ErrClosed = errors.New("store is closed")

// Backend defines the interface for a namespaced key-value database.
// Every call is its own transaction.
type Backend interface {
	// Get returns the value for key; ok is false when it is absent
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)

	// Put inserts or replaces the value for key
	Put(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes key; deleting an absent key is not an error
	Delete(ctx context.Context, namespace, key string) error

	// Close releases resources used by the backend
	Close() error
}

// Config contains configuration for the storage backend
type Config struct {
	Type string // "bolt", "sqlite" or "memory"
	Path string // database file; ignored by "memory"
}

// Open creates the configured backend and wraps it in a Store
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "bolt":
		backend, err = NewBoltBackend(cfg.Path)
	case "sqlite":
		backend, err = NewSQLiteBackend(ctx, cfg.Path)
	case "memory":
		backend = NewMemoryBackend()
	default:
		return nil, &models.ConfigurationError{Message: fmt.Sprintf("unknown storage backend %q", cfg.Type)}
	}
	if err != nil {
		return nil, err
	}
	return New(backend, logger), nil
}

// Store is the typed view over a Backend
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

// New wraps backend
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger, now: time.Now}
}

// Close closes the underlying backend
func (s *Store) Close() error {
	return s.backend.Close()
}

type sessionRecord struct {
	ID             string           `json:"id"`
	Messages       []models.Message `json:"messages"`
	LongTermMemory string           `json:"longTermMemory"`
	LastUpdated    int64            `json:"lastUpdated"`
}

// SaveSession writes the conversation, stamping it with the current time
func (s *Store) SaveSession(ctx context.Context, messages []models.Message, longTermMemory string) error {
	return s.putSession(ctx, sessionRecord{
		ID:             models.SessionKey,
		Messages:       messages,
		LongTermMemory: longTermMemory,
		LastUpdated:    s.now().UnixMilli(),
	})
}

// RestoreSession replaces the stored conversation with a backup, keeping its timestamp
func (s *Store) RestoreSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return &models.ConfigurationError{Message: "backup contains no session"}
	}
	lastUpdated := session.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = s.now()
	}
	return s.putSession(ctx, sessionRecord{
		ID:             models.SessionKey,
		Messages:       session.Messages,
		LongTermMemory: session.LongTermMemory,
		LastUpdated:    lastUpdated.UnixMilli(),
	})
}

func (s *Store) putSession(ctx context.Context, rec sessionRecord) error {
	if rec.Messages == nil {
		rec.Messages = []models.Message{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.backend.Put(ctx, NamespaceSessions, models.SessionKey, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Debug("session saved", zap.Int("messages", len(rec.Messages)), zap.Int("memory_chars", len(rec.LongTermMemory)))
	return nil
}

// LoadSession returns the stored conversation, or nil when nothing has been saved
func (s *Store) LoadSession(ctx context.Context) (*models.Session, error) {
	data, ok, err := s.backend.Get(ctx, NamespaceSessions, models.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if rec.ID == "" {
		rec.ID = models.SessionKey
	}
	session := &models.Session{
		ID:             rec.ID,
		Messages:       rec.Messages,
		LongTermMemory: rec.LongTermMemory,
	}
	if rec.LastUpdated > 0 {
		session.LastUpdated = time.UnixMilli(rec.LastUpdated)
	}
	return session, nil
}

// ClearSession removes the stored conversation
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.backend.Delete(ctx, NamespaceSessions, models.SessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SaveLanguage stores the reply language
func (s *Store) SaveLanguage(ctx context.Context, lang models.Language) error {
	return s.putPreference(ctx, KeyLanguage, []byte(models.ParseLanguage(string(lang))))
}

// LoadLanguage returns the stored reply language, english when unset or unknown
func (s *Store) LoadLanguage(ctx context.Context) (models.Language, error) {
	data, ok, err := s.backend.Get(ctx, NamespacePreferences, KeyLanguage)
	if err != nil {
		return models.LanguageEnglish, fmt.Errorf("failed to load language: %w", err)
	}
	if !ok {
		return models.LanguageEnglish, nil
	}
	return models.ParseLanguage(strings.TrimSpace(string(data))), nil
}

// SaveImageEndpoint stores the image endpoint; a blank URL unsets it
func (s *Store) SaveImageEndpoint(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		if err := s.backend.Delete(ctx, NamespacePreferences, KeyImageEndpoint); err != nil {
			return fmt.Errorf("failed to clear image endpoint: %w", err)
		}
		return nil
	}
	return s.putPreference(ctx, KeyImageEndpoint, []byte(endpoint))
}

// LoadImageEndpoint returns the image endpoint and whether one is set
func (s *Store) LoadImageEndpoint(ctx context.Context) (string, bool, error) {
	data, ok, err := s.backend.Get(ctx, NamespacePreferences, KeyImageEndpoint)
	if err != nil {
		return "", false, fmt.Errorf("failed to load image endpoint: %w", err)
	}
	endpoint := strings.TrimSpace(string(data))
	if !ok || endpoint == "" {
		return "", false, nil
	}
	return endpoint, true, nil
}

// SaveGenerationSettings stores the full settings record
func (s *Store) SaveGenerationSettings(ctx context.Context, settings models.GenerationSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode generation settings: %w", err)
	}
	return s.putPreference(ctx, KeyGenerationSettings, data)
}

// LoadGenerationSettings overlays whatever is stored onto the defaults.
// Stored data that cannot be decoded or fails validation is ignored.
func (s *Store) LoadGenerationSettings(ctx context.Context) (models.GenerationSettings, error) {
	data, ok, err := s.backend.Get(ctx, NamespacePreferences, KeyGenerationSettings)
	if err != nil {
		return models.DefaultGenerationSettings(), fmt.Errorf("failed to load generation settings: %w", err)
	}
	if !ok {
		return models.DefaultGenerationSettings(), nil
	}

	settings, err := models.MergeGenerationSettings(data)
	if err != nil {
		s.logger.Warn("stored generation settings are malformed, using defaults", zap.Error(err))
		return settings, nil
	}
	if err := settings.Validate(); err != nil {
		s.logger.Warn("stored generation settings are out of range, using defaults", zap.Error(err))
		return models.DefaultGenerationSettings(), nil
	}
	return settings, nil
}

// ClearGenerationSettings removes stored settings so the defaults apply
func (s *Store) ClearGenerationSettings(ctx context.Context) error {
	if err := s.backend.Delete(ctx, NamespacePreferences, KeyGenerationSettings); err != nil {
		return fmt.Errorf("failed to clear generation settings: %w", err)
	}
	return nil
}

func (s *Store) putPreference(ctx context.Context, key string, value []byte) error {
	if err := s.backend.Put(ctx, NamespacePreferences, key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// EncodeBackup renders a session in the stored record format
func EncodeBackup(session *models.Session) ([]byte, error) {
	if session == nil {
		return nil, &models.ConfigurationError{Message: "no session to back up"}
	}
	rec := sessionRecord{
		ID:             models.SessionKey,
		Messages:       session.Messages,
		LongTermMemory: session.LongTermMemory,
	}
	if rec.Messages == nil {
		rec.Messages = []models.Message{}
	}
	if !session.LastUpdated.IsZero() {
		rec.LastUpdated = session.LastUpdated.UnixMilli()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return data, nil
}

// DecodeBackup parses a record written by EncodeBackup
func DecodeBackup(data []byte) (*models.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &models.ConfigurationError{Message: fmt.Sprintf("invalid backup: %v", err), Err: err}
	}
	if rec.Messages == nil {
		return nil, &models.ConfigurationError{Message: "invalid backup: no messages"}
	}
	session := &models.Session{
		ID:             models.SessionKey,
		Messages:       rec.Messages,
		LongTermMemory: rec.LongTermMemory,
	}
	if rec.LastUpdated > 0 {
		session.LastUpdated = time.UnixMilli(rec.LastUpdated)
	}
	return session, nil
}
