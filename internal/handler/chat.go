// Package handler wires HTTP requests from the chat widget to order capture
// and the completion relay.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/atelier-marbre/chatbot/internal/command"
	"github.com/atelier-marbre/chatbot/internal/config"
	"github.com/atelier-marbre/chatbot/internal/llm"
	"github.com/atelier-marbre/chatbot/internal/model"
	"github.com/atelier-marbre/chatbot/internal/response"
)

// Caller-facing messages. Operator detail stays in the logs.
const (
	msgMessageRequired = "Message required"
	msgStoreFailed     = "Impossible d'enregistrer la commande pour le moment, veuillez réessayer."
	msgLLMTimeout      = "Le service de réponse n'a pas répondu à temps (timeout), veuillez réessayer."
	msgLLMEmpty        = "Le service de réponse n'a renvoyé aucun texte, veuillez réessayer."
	msgLLMUnavailable  = "Le service de réponse est indisponible pour le moment."
	msgLLMBadJSON      = "LLM JSON parse error"
	notProvided        = "non renseigné"
)

// OrderStore is the insert-order capability. The pgx repository implements
// it in production; tests use an in-memory fake.
type OrderStore interface {
	Insert(ctx context.Context, order *model.Order) (*model.Order, error)
}

// Completer is the completion-API capability the relay depends on.
type Completer interface {
	Reply(ctx context.Context, userMessage string) (string, error)
	ClassifyIntent(ctx context.Context, userMessage string) (*llm.Intent, error)
}

// ChatHandler handles POST /api/chat.
type ChatHandler struct {
	Store OrderStore
	LLM   Completer
	Mode  string
	Log   zerolog.Logger
}

// NewChatHandler returns a handler in the given chat mode (config.ModeReply
// or config.ModeIntent).
func NewChatHandler(store OrderStore, completer Completer, mode string, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{Store: store, LLM: completer, Mode: mode, Log: log}
}

// Chat classifies the incoming message and routes it to order capture or the
// completion relay. No outbound call is made before the message passes the
// gate.
func (h *ChatHandler) Chat(c echo.Context) error {
	message, ok := extractMessage(c.Request().Body)
	if !ok {
		return response.BadRequest(c, msgMessageRequired)
	}

	ctx := c.Request().Context()

	if draft, isOrder := command.Parse(message); isOrder {
		return h.captureOrder(c, ctx, draft, message)
	}

	if h.Mode == config.ModeIntent {
		return h.relayIntent(c, ctx, message)
	}
	return h.relayReply(c, ctx, message)
}

// extractMessage normalizes the body (object, or JSON-encoded string holding
// an object) and pulls out the trimmed message. Parse failures degrade to an
// absent message rather than an exception.
func extractMessage(r io.Reader) (string, bool) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		var nested string
		if json.Unmarshal(body, &nested) == nil {
			// Double-encoded body; a second parse failure leaves an
			// empty object and the message-required check fires.
			_ = json.Unmarshal([]byte(nested), &fields)
		}
	}

	raw, ok := fields["message"]
	if !ok {
		return "", false
	}
	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return "", false
	}
	message = strings.TrimSpace(message)
	return message, message != ""
}

func (h *ChatHandler) captureOrder(c echo.Context, ctx context.Context, draft *command.Draft, rawMessage string) error {
	if h.Store == nil {
		h.Log.Error().Msg("order store is not configured")
		return response.InternalError(c, msgStoreFailed)
	}

	order := orderFromDraft(draft, rawMessage)
	stored, err := h.Store.Insert(ctx, order)
	if err != nil {
		h.Log.Error().Err(err).Str("raw_message", rawMessage).Msg("order insert failed")
		return response.InternalError(c, msgStoreFailed)
	}

	h.Log.Info().Str("order_id", stored.ID.String()).Msg("order captured")
	return response.Reply(c, confirmation(stored))
}

func (h *ChatHandler) relayReply(c echo.Context, ctx context.Context, message string) error {
	text, err := h.LLM.Reply(ctx, message)
	if err != nil {
		return h.completionError(c, err)
	}
	return response.Reply(c, text)
}

func (h *ChatHandler) relayIntent(c echo.Context, ctx context.Context, message string) error {
	intent, err := h.LLM.ClassifyIntent(ctx, message)
	if err != nil {
		return h.completionError(c, err)
	}
	if intent.Intent == llm.IntentSearch {
		return response.JSON(c, http.StatusOK, map[string]any{
			"intent": intent.Intent,
			"filters": map[string]any{
				"keywords": intent.Keywords,
				"page":     intent.Page,
				"min":      intent.Min,
				"max":      intent.Max,
				"limit":    intent.Limit,
			},
		})
	}
	return response.JSON(c, http.StatusOK, map[string]any{
		"intent": intent.Intent,
		"answer": intent.Answer,
	})
}

// completionError maps the relay's error kinds onto distinguishable 500s.
func (h *ChatHandler) completionError(c echo.Context, err error) error {
	var httpErr *llm.HTTPError
	switch {
	case errors.Is(err, llm.ErrTimeout):
		h.Log.Error().Err(err).Msg("completion timed out")
		return response.InternalError(c, msgLLMTimeout)
	case errors.Is(err, llm.ErrBadIntentJSON):
		h.Log.Error().Err(err).Msg("completion returned unparseable intent JSON")
		return response.InternalError(c, msgLLMBadJSON)
	case errors.Is(err, llm.ErrEmptyReply):
		h.Log.Error().Err(err).Msg("completion returned an empty reply")
		return response.InternalError(c, msgLLMEmpty)
	case errors.As(err, &httpErr):
		h.Log.Error().Int("status", httpErr.Status).Str("body", httpErr.Body).
			Msg("completion API failed after fallback")
		return response.InternalError(c, msgLLMUnavailable)
	default:
		h.Log.Error().Err(err).Msg("completion call failed")
		return response.InternalError(c, msgLLMUnavailable)
	}
}

// orderFromDraft coerces the parsed draft into a record. A non-numeric
// quantity is stored as NULL rather than rejected.
func orderFromDraft(d *command.Draft, rawMessage string) *model.Order {
	order := &model.Order{
		CustomerName:    optional(d.CustomerName),
		Phone:           optional(d.Phone),
		ProductFilename: optional(d.ProductFilename),
		Unit:            d.Unit,
		Note:            optional(d.Note),
		RawMessage:      rawMessage,
	}
	if d.Quantity != "" {
		if qty, err := strconv.ParseFloat(d.Quantity, 64); err == nil {
			order.Quantity = &qty
		}
	}
	return order
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// confirmation echoes the captured fields back to the customer.
func confirmation(o *model.Order) string {
	quantity := notProvided
	if o.Quantity != nil {
		quantity = strconv.FormatFloat(*o.Quantity, 'f', -1, 64) + " " + o.Unit
	}
	return fmt.Sprintf(
		"Commande enregistrée ✅ Nom : %s · Téléphone : %s · Produit : %s · Quantité : %s · Note : %s. "+
			"Nous vous recontacterons très vite.",
		orPlaceholder(o.CustomerName),
		orPlaceholder(o.Phone),
		orPlaceholder(o.ProductFilename),
		quantity,
		orPlaceholder(o.Note),
	)
}

func orPlaceholder(s *string) string {
	if s == nil {
		return notProvided
	}
	return *s
}
