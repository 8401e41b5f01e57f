package models

// ErrorKind classifies a failed turn
type ErrorKind string

const (
	// ErrorKindGeneral is reported for every failed completion
	ErrorKindGeneral ErrorKind = "GENERAL"
)

// EveResponse is the normalized result of one orchestrated turn.
// It is transient: the presentation layer folds it into a Message right away.
type EveResponse struct {
	Text         string    `json:"text"`
	Image        string    `json:"image,omitempty"`
	VisualPrompt string    `json:"visualPrompt,omitempty"`
	IsError      bool      `json:"isError,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
}

// ToMessage folds the response into a companion turn
func (r EveResponse) ToMessage() Message {
	if r.IsError {
		return NewErrorMessage(r.Text)
	}
	return NewModelMessage(r.Text, r.Image)
}
