package orchestrator

import "strings"

// VisualMarker is the token the model emits to ask for a picture
const VisualMarker = "!IMG:"

// FallbackSpokenText replaces an empty reply that consisted only of a visual directive
const FallbackSpokenText = "Here is the photo."

// Directive is a model reply split into what is said and what should be drawn
type Directive struct {
	Spoken       string
	VisualPrompt string
	HasVisual    bool
}

// ParseDirective splits reply on the first VisualMarker.
// Later markers stay in the visual prompt verbatim. One leading "[" and one
// trailing "]" are removed from the prompt; unbalanced brackets are tolerated.
func ParseDirective(reply string) Directive {
	reply = strings.TrimSpace(reply)

	before, after, found := strings.Cut(reply, VisualMarker)
	if !found {
		return Directive{Spoken: reply}
	}

	spoken := strings.TrimSpace(before)
	if spoken == "" {
		spoken = FallbackSpokenText
	}

	return Directive{
		Spoken:       spoken,
		VisualPrompt: cleanVisualPrompt(after),
		HasVisual:    true,
	}
}

func cleanVisualPrompt(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.TrimSpace(s)
}
