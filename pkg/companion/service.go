// Package companion owns the conversation as the user sees it: the cached
// transcript, memory, preferences and transient UI state. Every change is
// written through to the store. Both the terminal and the HTTP front ends sit on it.
package companion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/andrew/eve-companion/pkg/models"
	"github.com/andrew/eve-companion/pkg/orchestrator"
	"github.com/andrew/eve-companion/pkg/store"
)

// WelcomeText is the only thing shown in a fresh conversation
const WelcomeText = "hello world"

// ErrConsolidationInFlight is returned when a consolidation is already running
var ErrConsolidationInFlight = errors.New("memory consolidation already running")

// Turner runs one conversational turn
type Turner interface {
	SubmitTurn(ctx context.Context, req orchestrator.TurnRequest) models.EveResponse
}

// Summarizer folds the conversation into long-term memory
type Summarizer interface {
	Consolidate(ctx context.Context, history []models.Message, existingMemory string, settings models.GenerationSettings) (string, error)
}

// Service is the presentation-side state owner
type Service struct {
	store      *store.Store
	turner     Turner
	summarizer Summarizer
	logger     *zap.Logger

	turn          *semaphore.Weighted
	consolidation *semaphore.Weighted

	mu            sync.Mutex
	messages      []models.Message
	memory        string
	language      models.Language
	imageEndpoint string
	settings      models.GenerationSettings
	emotion       Emotion
	thinking      bool
	consolidating bool
	notices       []Notice
}

// NewService creates a service. Call Hydrate before use.
func NewService(st *store.Store, turner Turner, summarizer Summarizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         st,
		turner:        turner,
		summarizer:    summarizer,
		logger:        logger,
		turn:          semaphore.NewWeighted(1),
		consolidation: semaphore.NewWeighted(1),
		messages:      welcome(),
		language:      models.LanguageEnglish,
		settings:      models.DefaultGenerationSettings(),
		emotion:       EmotionNeutral,
	}
}

func welcome() []models.Message {
	return []models.Message{models.NewModelMessage(WelcomeText, "")}
}

// Hydrate loads the stored conversation and preferences.
// Load failures are logged and leave the corresponding defaults in place.
func (s *Service) Hydrate(ctx context.Context) {
	session, err := s.store.LoadSession(ctx)
	if err != nil {
		s.logger.Error("failed to load session, starting fresh", zap.Error(err))
	}
	language, err := s.store.LoadLanguage(ctx)
	if err != nil {
		s.logger.Warn("failed to load language", zap.Error(err))
	}
	endpoint, _, err := s.store.LoadImageEndpoint(ctx)
	if err != nil {
		s.logger.Warn("failed to load image endpoint", zap.Error(err))
	}
	settings, err := s.store.LoadGenerationSettings(ctx)
	if err != nil {
		s.logger.Warn("failed to load generation settings", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = welcome()
	s.memory = ""
	if session != nil {
		if len(session.Messages) > 0 {
			s.messages = session.Messages
		}
		s.memory = session.LongTermMemory
	}
	s.language = language
	s.imageEndpoint = endpoint
	s.settings = settings

	s.logger.Info("session hydrated",
		zap.Int("messages", len(s.messages)),
		zap.Int("memory_chars", len(s.memory)),
		zap.String("language", string(s.language)),
		zap.Bool("image_endpoint", s.imageEndpoint != ""))
}

// Send runs one turn for text and returns the companion's reply as appended to history.
// Only one turn runs at a time; a second call while one is in flight fails with
// models.ErrTurnInFlight.
func (s *Service) Send(ctx context.Context, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, models.ErrEmptyInput
	}
	if !s.turn.TryAcquire(1) {
		return models.Message{}, models.ErrTurnInFlight
	}
	defer s.turn.Release(1)

	s.mu.Lock()
	userMsg := models.NewUserMessage(text)
	s.messages = append(s.messages, userMsg)
	req := orchestrator.TurnRequest{
		UserText:       userMsg.Text,
		History:        copyMessages(s.messages),
		LongTermMemory: s.memory,
		Settings:       s.settings,
		ImageEndpoint:  s.imageEndpoint,
		Language:       s.language,
	}
	s.thinking = true
	s.emotion = EmotionNeutral
	s.persistLocked(ctx)
	s.mu.Unlock()

	start := time.Now()
	resp := s.turner.SubmitTurn(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	reply := resp.ToMessage()
	s.messages = append(s.messages, reply)
	s.thinking = false
	if resp.IsError {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "Error connecting to local model"
		}
		s.noticeLocked(NoticeError, msg)
	}
	s.persistLocked(ctx)

	s.logger.Info("turn finished",
		zap.Bool("error", resp.IsError),
		zap.Bool("image", resp.Image != ""),
		zap.Duration("elapsed", time.Since(start)))
	return reply, nil
}

// Consolidate folds the conversation into long-term memory.
// On failure the existing memory is kept and an error notice is queued.
func (s *Service) Consolidate(ctx context.Context) error {
	if !s.consolidation.TryAcquire(1) {
		return ErrConsolidationInFlight
	}
	defer s.consolidation.Release(1)

	s.mu.Lock()
	if len(s.messages) < 2 {
		s.noticeLocked(NoticeError, "Not enough conversation to summarize.")
		s.mu.Unlock()
		return &models.ConfigurationError{Err: models.ErrNothingToSummarize}
	}
	history := copyMessages(s.messages)
	existing := s.memory
	settings := s.settings
	s.consolidating = true
	s.mu.Unlock()

	summary, err := s.summarizer.Consolidate(ctx, history, existing, settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.consolidating = false

	if err != nil {
		if errors.Is(err, models.ErrNothingToSummarize) {
			s.noticeLocked(NoticeError, "Not enough conversation to summarize.")
		} else {
			s.noticeLocked(NoticeError, "Failed to consolidate memories.")
		}
		return err
	}

	s.memory = summary
	s.persistLocked(ctx)
	s.noticeLocked(NoticeSuccess, "Memories consolidated successfully.")
	return nil
}

// SetMemory replaces the long-term memory with hand-edited text
func (s *Service) SetMemory(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SaveSession(ctx, s.messages, text); err != nil {
		return err
	}
	s.memory = text
	return nil
}

// ClearHistory forgets the conversation and the memory.
// It fails with models.ErrTurnInFlight while a turn is running.
func (s *Service) ClearHistory(ctx context.Context) error {
	if !s.turn.TryAcquire(1) {
		return models.ErrTurnInFlight
	}
	defer s.turn.Release(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearSession(ctx); err != nil {
		s.noticeLocked(NoticeError, "Failed to clear memory.")
		return err
	}
	s.messages = welcome()
	s.memory = ""
	s.noticeLocked(NoticeSuccess, "Memory cleared.")
	return nil
}

// Export returns the current conversation as a backup record
func (s *Service) Export(_ context.Context) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.Session{
		ID:             models.SessionKey,
		Messages:       copyMessages(s.messages),
		LongTermMemory: s.memory,
		LastUpdated:    time.Now(),
	}
}

// Restore replaces the conversation with a backup and writes it through.
// It fails with models.ErrTurnInFlight while a turn is running.
func (s *Service) Restore(ctx context.Context, session *models.Session) error {
	if !s.turn.TryAcquire(1) {
		return models.ErrTurnInFlight
	}
	defer s.turn.Release(1)

	if err := s.store.RestoreSession(ctx, session); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = copyMessages(session.Messages)
	if len(s.messages) == 0 {
		s.messages = welcome()
	}
	s.memory = session.LongTermMemory
	s.noticeLocked(NoticeSuccess, "Session restored.")
	s.logger.Info("session restored from backup", zap.Int("messages", len(s.messages)))
	return nil
}

// persistLocked writes the conversation through; s.mu must be held.
// A failed write is reported as a notice and does not fail the caller.
func (s *Service) persistLocked(ctx context.Context) {
	if err := s.store.SaveSession(ctx, s.messages, s.memory); err != nil {
		s.logger.Error("failed to save session", zap.Error(err))
		s.noticeLocked(NoticeError, "Could not save the conversation.")
	}
}

func copyMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	copy(out, in)
	return out
}
