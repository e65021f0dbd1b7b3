package guide

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseReplySections(t *testing.T) {
	text := `It sounds like you are carrying a lot right now.
That heaviness deserves gentleness.

**Journal Prompts:**
1. What is this feeling asking of me?
- Where do I hold it in my body?
• What would release feel like?
* One more prompt that should be dropped

**Grounding Suggestion:**
- Take three slow breaths
and notice your feet on the floor.`

	r := ParseReply(text)
	if r.Reflection != "It sounds like you are carrying a lot right now. That heaviness deserves gentleness." {
		t.Fatalf("unexpected reflection: %q", r.Reflection)
	}
	want := []string{
		"What is this feeling asking of me?",
		"Where do I hold it in my body?",
		"What would release feel like?",
	}
	if len(r.JournalPrompts) != len(want) {
		t.Fatalf("expected %d prompts, got %v", len(want), r.JournalPrompts)
	}
	for i := range want {
		if r.JournalPrompts[i] != want[i] {
			t.Fatalf("prompt %d = %q, want %q", i, r.JournalPrompts[i], want[i])
		}
	}
	if r.GroundingSuggestion == nil || *r.GroundingSuggestion != "Take three slow breaths and notice your feet on the floor." {
		t.Fatalf("unexpected grounding: %v", r.GroundingSuggestion)
	}
}

func TestParseReplyPlainText(t *testing.T) {
	r := ParseReply("  Just breathe.  ")
	if r.Reflection != "Just breathe." {
		t.Fatalf("unexpected reflection: %q", r.Reflection)
	}
	if r.JournalPrompts == nil || len(r.JournalPrompts) != 0 {
		t.Fatalf("expected empty prompt list, got %#v", r.JournalPrompts)
	}
	if r.GroundingSuggestion != nil {
		t.Fatalf("expected no grounding, got %q", *r.GroundingSuggestion)
	}
}

func TestParseReplyFallsBackToFullText(t *testing.T) {
	text := "Journal prompts:\n- What am I ready to let go of?"
	r := ParseReply(text)
	if r.Reflection != text {
		t.Fatalf("expected full text as reflection, got %q", r.Reflection)
	}
	if len(r.JournalPrompts) != 1 || r.JournalPrompts[0] != "What am I ready to let go of?" {
		t.Fatalf("unexpected prompts: %v", r.JournalPrompts)
	}
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	if c.Configured() {
		t.Fatal("client without key must not be configured")
	}
	if _, err := c.Complete(context.Background(), "hello"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClientComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Be gentle with yourself."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	reply, err := c.Complete(context.Background(), "I feel stuck")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "Be gentle with yourself." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if got.Model != DefaultModel || got.MaxTokens != DefaultMaxTokens {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "I feel stuck" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestClientProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: time.Second}, nil)
	if _, err := c.Complete(context.Background(), "hi"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	if _, err := c.Complete(context.Background(), "hi"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
