package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:       url,
		APIKey:        "test-key",
		Model:         "primary-model",
		FallbackModel: "fallback-model",
		Temperature:   0.7,
		MaxTokens:     300,
		Timeout:       2 * time.Second,
		SystemPrompt:  "Tu es l'assistant de la galerie.",
	}
}

// completionServer returns a fake chat-completions endpoint that delegates
// per-request behavior to fn.
func completionServer(t *testing.T, fn func(w http.ResponseWriter, req chatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fn(w, req)
	}))
}

func reply(w http.ResponseWriter, content string) {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestReplySuccess(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		if req.Model != "primary-model" {
			t.Errorf("model = %q, want primary-model", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected prompt shape: %+v", req.Messages)
		}
		if req.ResponseFormat != nil {
			t.Error("plain reply should not request a response format")
		}
		reply(w, "Bonjour ! Comment puis-je vous aider ?")
	})
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), zerolog.Nop())
	got, err := c.Reply(context.Background(), "bonjour")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Bonjour ! Comment puis-je vous aider ?" {
		t.Errorf("reply = %q", got)
	}
}

func TestReplyFallsBackOncePrimaryFails(t *testing.T) {
	var calls []string
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		calls = append(calls, req.Model)
		if req.Model == "primary-model" {
			http.Error(w, `{"error":"model overloaded"}`, http.StatusBadGateway)
			return
		}
		reply(w, "réponse du modèle de secours")
	})
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), zerolog.Nop())
	got, err := c.Reply(context.Background(), "bonjour")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "réponse du modèle de secours" {
		t.Errorf("reply = %q", got)
	}
	want := []string{"primary-model", "fallback-model"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("model sequence = %v, want %v", calls, want)
	}
}

func TestReplyFailsAfterBothModels(t *testing.T) {
	var calls int
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		calls++
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), zerolog.Nop())
	_, err := c.Reply(context.Background(), "bonjour")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", httpErr.Status)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (primary then one fallback)", calls)
	}
}

func TestReplyTimeout(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		time.Sleep(300 * time.Millisecond)
		reply(w, "trop tard")
	})
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg, zerolog.Nop())
	_, err := c.Reply(context.Background(), "bonjour")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestReplyEmptyContentIsAnError(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		reply(w, "   ")
	})
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), zerolog.Nop())
	_, err := c.Reply(context.Background(), "bonjour")
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestClassifyIntentSearchClampsLimit(t *testing.T) {
	cases := []struct {
		limit     string // raw JSON fragment, "" means absent
		wantLimit int
	}{
		{`,"limit":0`, 1},
		{`,"limit":200`, 50},
		{``, 12},
		{`,"limit":25`, 25},
	}
	for _, tc := range cases {
		content := fmt.Sprintf(`{"intent":"search","keywords":"marbre noir","page":2%s}`, tc.limit)
		srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
			if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
				t.Error("intent mode should request a JSON object response")
			}
			reply(w, content)
		})

		c := NewClient(testConfig(srv.URL), zerolog.Nop())
		intent, err := c.ClassifyIntent(context.Background(), "je cherche du marbre noir")
		srv.Close()
		if err != nil {
			t.Fatalf("ClassifyIntent(%s): %v", tc.limit, err)
		}
		if intent.Intent != IntentSearch {
			t.Errorf("intent = %q", intent.Intent)
		}
		if intent.Limit != tc.wantLimit {
			t.Errorf("limit %s: got %d, want %d", tc.limit, intent.Limit, tc.wantLimit)
		}
		if intent.Keywords != "marbre noir" {
			t.Errorf("keywords = %q", intent.Keywords)
		}
		if intent.Page == nil || *intent.Page != 2 {
			t.Errorf("page = %v, want 2", intent.Page)
		}
	}
}

func TestClassifyIntentSmalltalkDefaults(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		reply(w, `{"intent":"smalltalk"}`)
	})
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), zerolog.Nop())
	intent, err := c.ClassifyIntent(context.Background(), "bonjour")
	if err != nil {
		t.Fatalf("ClassifyIntent: %v", err)
	}
	if intent.Intent != IntentSmalltalk {
		t.Errorf("intent = %q", intent.Intent)
	}
	if intent.Answer != DefaultSuggestion {
		t.Errorf("answer = %q, want the default suggestion", intent.Answer)
	}
}

func TestClassifyIntentMalformedJSON(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, req chatRequest) {
		reply(w, "désolé, je ne peux pas répondre en JSON")
	})
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), zerolog.Nop())
	_, err := c.ClassifyIntent(context.Background(), "bonjour")
	if !errors.Is(err, ErrBadIntentJSON) {
		t.Fatalf("expected ErrBadIntentJSON, got %v", err)
	}
}

func TestNewClientSkipsRedundantFallback(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.FallbackModel = cfg.Model
	c := NewClient(cfg, zerolog.Nop())
	if len(c.models) != 1 {
		t.Errorf("models = %v, want a single entry", c.models)
	}
}
