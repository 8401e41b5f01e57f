package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message sender
type Role string

const (
	// RoleUser represents a message from the user
	RoleUser Role = "user"
	// RoleModel represents a message from the companion
	RoleModel Role = "model"
	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// SessionKey is the fixed identifier of the one conversation a client installation keeps.
const SessionKey = "global_session"

// Message represents one conversational turn
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Image   string `json:"image,omitempty"`
	IsError bool   `json:"isError,omitempty"`

	// IsImageLoading is only meaningful while a view is rendering the turn.
	IsImageLoading bool `json:"-"`
}

// NewID returns a fresh message identifier
func NewID() string {
	return uuid.NewString()
}

// NewUserMessage creates a user turn
func NewUserMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleUser, Text: text}
}

// NewModelMessage creates a companion turn, optionally carrying an image reference
func NewModelMessage(text, image string) Message {
	return Message{ID: NewID(), Role: RoleModel, Text: text, Image: image}
}

// NewErrorMessage creates a failure notice shown in the transcript
func NewErrorMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleModel, Text: text, IsError: true}
}

// Session represents the single persisted conversation
type Session struct {
	ID             string    `json:"id"`
	Messages       []Message `json:"messages"`
	LongTermMemory string    `json:"longTermMemory"`
	LastUpdated    time.Time `json:"-"`
}
