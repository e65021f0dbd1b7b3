// Package guide talks to the chat completion provider behind the SoulArt
// Guide and shapes its free-text replies into reflection, prompts and an
// optional grounding suggestion.
package guide

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/metrics"
)

var (
	// ErrNotConfigured is returned when no provider credentials are set.
	ErrNotConfigured = errors.New("guide: provider not configured")
	// ErrUnavailable wraps provider failures and empty replies.
	ErrUnavailable = errors.New("guide: provider unavailable")
)

const (
	DefaultModel       = openai.GPT4oMini
	DefaultMaxTokens   = 800
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
	MaxMessageLength   = 500
	maxJournalPrompts  = 3
)

// SystemPrompt frames every conversation with the guide.
const SystemPrompt = `You are the SoulArt Guide, a gentle and compassionate companion within SoulArt Temple, a wellness space for emotional healing and self-inquiry.

Your purpose is to:
1. Offer a gentle, trauma-aware reflection on what the user shares
2. Offer 1-3 journal prompts that invite self-inquiry
3. Suggest a simple grounding exercise when it fits (breath work, doodling, colour focus)

GUIDELINES:
- Be warm and supportive
- Help users remember their own sovereignty and inner knowing
- Never give medical, psychological or crisis advice
- Never predict the future or tell users who they are
- Keep replies concise (2-4 short paragraphs at most)
- Trapped emotions, energy, chakras and frequency may be referenced when relevant

RESPONSE FORMAT:
1. A brief, empathetic reflection
2. A "Journal Prompts" section with 1-3 prompts
3. An optional "Grounding Suggestion" section

You are a supportive mirror, not an authority.`

// Completer produces a guide reply for a user message.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

// Config configures the OpenAI-backed completer.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Client is a Completer backed by an OpenAI compatible chat API.
type Client struct {
	api *openai.Client
	cfg Config
	log *logger.Logger
}

// NewClient builds a client. Without an API key the client reports
// ErrNotConfigured on every call.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{cfg: cfg, log: log}
	if strings.TrimSpace(cfg.APIKey) != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		c.api = openai.NewClientWithConfig(oc)
	}
	return c
}

// Configured reports whether the provider can be called.
func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

// Complete sends message to the provider with the guide system prompt.
func (c *Client) Complete(ctx context.Context, message string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		metrics.ObserveGuideCompletion("error", time.Since(start))
		c.log.Errorf("[guide] completion failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ObserveGuideCompletion("empty", time.Since(start))
		return "", fmt.Errorf("%w: empty reply", ErrUnavailable)
	}

	metrics.ObserveGuideCompletion("ok", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// Reply is a structured guide answer.
type Reply struct {
	Reflection          string   `json:"reflection"`
	JournalPrompts      []string `json:"journal_prompts"`
	GroundingSuggestion *string  `json:"grounding_suggestion"`
}

type section int

const (
	sectionReflection section = iota
	sectionPrompts
	sectionGrounding
)

// ParseReply splits a free-text reply into its sections. Lines mentioning
// prompts or grounding act as headers. Text before any header is the
// reflection; if there is none the whole reply is used.
func ParseReply(text string) Reply {
	var (
		current    = sectionReflection
		reflection []string
		grounding  []string
		prompts    = []string{}
	)

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		switch {
		case strings.Contains(lower, "journal prompt") || strings.Contains(lower, "prompts"):
			current = sectionPrompts
			continue
		case strings.Contains(lower, "grounding") || strings.Contains(lower, "suggestion"):
			current = sectionGrounding
			continue
		}

		clean := strings.TrimSpace(line)
		if clean == "" {
			continue
		}

		switch current {
		case sectionReflection:
			reflection = append(reflection, clean)
		case sectionPrompts:
			if hasListPrefix(clean) {
				if p := strings.TrimLeft(clean, "-•*123456789. "); p != "" {
					prompts = append(prompts, p)
				}
			}
		case sectionGrounding:
			if len(grounding) == 0 {
				clean = strings.TrimLeft(clean, "-•*")
			}
			grounding = append(grounding, clean)
		}
	}

	r := Reply{
		Reflection:     strings.TrimSpace(strings.Join(reflection, " ")),
		JournalPrompts: prompts,
	}
	if r.Reflection == "" {
		r.Reflection = strings.TrimSpace(text)
	}
	if len(r.JournalPrompts) > maxJournalPrompts {
		r.JournalPrompts = r.JournalPrompts[:maxJournalPrompts]
	}
	if g := strings.TrimSpace(strings.Join(grounding, " ")); g != "" {
		r.GroundingSuggestion = &g
	}
	return r
}

func hasListPrefix(line string) bool {
	for _, p := range []string{"-", "•", "*", "1", "2", "3"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
