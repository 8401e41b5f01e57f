package companion

import (
	"math"
	"unicode/utf8"

	"github.com/andrew/eve-companion/pkg/models"
)

// Emotion is the avatar expression shown next to the transcript
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionCheeky    Emotion = "cheeky"
	EmotionAngry     Emotion = "angry"
	EmotionSmirking  Emotion = "smirking"
	EmotionSeductive Emotion = "seductive"
)

// NoticeLevel is the style of a transient notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message for the user, shown once
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// TokenLevel grades how full the model's context is likely to be
type TokenLevel string

const (
	TokensOK       TokenLevel = "ok"
	TokensWarning  TokenLevel = "warning"
	TokensCritical TokenLevel = "critical"
)

// Token thresholds for TokenLevel
const (
	TokenWarningThreshold  = 6000
	TokenCriticalThreshold = 8000
)

// Snapshot is a consistent copy of everything a view renders
type Snapshot struct {
	Messages       []models.Message          `json:"messages"`
	LongTermMemory string                    `json:"longTermMemory"`
	Thinking       bool                      `json:"thinking"`
	Consolidating  bool                      `json:"consolidating"`
	Emotion        Emotion                   `json:"emotion"`
	Tokens         int                       `json:"tokens"`
	TokenLevel     TokenLevel                `json:"tokenLevel"`
	Language       models.Language           `json:"language"`
	ImageEndpoint  string                    `json:"imageEndpoint"`
	Settings       models.GenerationSettings `json:"settings"`
}

// EstimateTokens approximates prompt size as a quarter of the characters in
// history and memory. A conversation of one message counts as empty.
func EstimateTokens(messages []models.Message, memory string) int {
	if len(messages) <= 1 {
		return 0
	}
	chars := utf8.RuneCountInString(memory)
	for _, msg := range messages {
		chars += utf8.RuneCountInString(msg.Text)
	}
	return int(math.Round(float64(chars) / 4))
}

// LevelFor grades a token estimate
func LevelFor(tokens int) TokenLevel {
	switch {
	case tokens > TokenCriticalThreshold:
		return TokensCritical
	case tokens > TokenWarningThreshold:
		return TokensWarning
	default:
		return TokensOK
	}
}

// Snapshot returns the current state
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := EstimateTokens(s.messages, s.memory)
	return Snapshot{
		Messages:       copyMessages(s.messages),
		LongTermMemory: s.memory,
		Thinking:       s.thinking,
		Consolidating:  s.consolidating,
		Emotion:        s.emotion,
		Tokens:         tokens,
		TokenLevel:     LevelFor(tokens),
		Language:       s.language,
		ImageEndpoint:  s.imageEndpoint,
		Settings:       s.settings,
	}
}

// DrainNotices returns queued notices and clears the queue
func (s *Service) DrainNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Service) noticeLocked(level NoticeLevel, message string) {
	s.notices = append(s.notices, Notice{Level: level, Message: message})
}
