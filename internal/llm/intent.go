package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadIntentJSON means the model did not return parseable JSON in intent
// mode. Kept distinct so the caller can surface "LLM JSON parse error".
var ErrBadIntentJSON = errors.New("LLM JSON parse error")

// Intent values the classifier is constrained to.
const (
	IntentSearch    = "search"
	IntentSmalltalk = "smalltalk"
)

// Limit bounds for gallery search results.
const (
	minLimit     = 1
	maxLimit     = 50
	defaultLimit = 12
)

// DefaultSuggestion is returned when a smalltalk classification carries no
// answer text.
const DefaultSuggestion = "Je peux vous aider à trouver un produit : essayez par exemple « marbre noir » ou « travertin beige »."

const intentSystemPrompt = `Tu es le classifieur d'intentions du chat d'une galerie de marbre et pierre naturelle.
Réponds UNIQUEMENT avec un objet JSON, sans texte autour, de la forme :
{"intent":"search"|"smalltalk","keywords":"...","page":1,"min":0,"max":0,"limit":12,"answer":"..."}
- "search" quand l'utilisateur cherche un produit : remplis keywords et, si mentionnés, page, min, max, limit.
- "smalltalk" sinon : remplis answer avec une courte réponse en français.`

// Intent is the normalized structured classification of a user message.
type Intent struct {
	Intent   string   `json:"intent"`
	Keywords string   `json:"keywords,omitempty"`
	Page     *int     `json:"page,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Limit    int      `json:"limit"`
	Answer   string   `json:"answer,omitempty"`
}

// rawIntent is the model's JSON before normalization; Limit stays a pointer
// so an absent field can be told apart from an explicit zero.
type rawIntent struct {
	Intent   string   `json:"intent"`
	Keywords string   `json:"keywords"`
	Page     *int     `json:"page"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Limit    *int     `json:"limit"`
	Answer   string   `json:"answer"`
}

// ClassifyIntent asks the completion API for a structured classification of
// the user message instead of free text, then normalizes it.
func (c *Client) ClassifyIntent(ctx context.Context, userMessage string) (*Intent, error) {
	text, err := c.complete(ctx, intentSystemPrompt, userMessage, true)
	if err != nil {
		return nil, err
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadIntentJSON, err)
	}
	return normalizeIntent(raw), nil
}

// normalizeIntent applies the limit clamp and the smalltalk fallbacks.
// Anything that is not a search is treated as smalltalk.
func normalizeIntent(raw rawIntent) *Intent {
	if raw.Intent != IntentSearch {
		answer := raw.Answer
		if answer == "" {
			answer = DefaultSuggestion
		}
		return &Intent{Intent: IntentSmalltalk, Answer: answer}
	}

	limit := defaultLimit
	if raw.Limit != nil {
		limit = *raw.Limit
	}
	if limit < minLimit {
		limit = minLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return &Intent{
		Intent:   IntentSearch,
		Keywords: raw.Keywords,
		Page:     raw.Page,
		Min:      raw.Min,
		Max:      raw.Max,
		Limit:    limit,
	}
}
