// Package llm wraps the external language-model completion endpoint behind a
// small Analyzer contract. The rest of the application only ever sees
// Analyze(content, history) -> Result; the HTTP shape of the provider, the
// prompt construction, and the JSON-from-text fallback parsing all live here.
//
// The client targets any OpenAI-compatible chat-completions API. It is the
// system's only network dependency and its only non-deterministic component,
// so it is deliberately substitutable: tests inject a deterministic stub
// implementing the same interface.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// systemPrompt instructs the model to answer with exactly the three fields
// the orchestration layer persists.
const systemPrompt = `You are an AI interview assistant. For each user message, generate:
- a follow-up question
- a theme tag (format: category: value, e.g., taste_profile: bitter)
- a confidence score between 0 and 1
Respond in this JSON format:
{"followUp": "...", "themeTag": "...", "confidence": 0.92}`

// Sentinel errors surfaced to the service layer. The HTTP boundary maps both
// to a generic 500 without leaking provider internals.
var (
	// ErrUnavailable indicates the provider call failed or returned no content.
	ErrUnavailable = errors.New("completion provider unavailable")
	// ErrParse indicates the provider answered but its output contained no
	// well-formed JSON object.
	ErrParse = errors.New("completion output is not parseable JSON")
)

// Metadata carries audit information about a single completion call. It is
// attached to the result and persisted alongside the response row; business
// logic never reads it.
type Metadata struct {
	Model     string `json:"model"`
	Tokens    int    `json:"tokens,omitempty"`
	LatencyMS int64  `json:"latency"`
}

// Result is the structured outcome of analyzing one user message.
type Result struct {
	FollowUp   string   `json:"followUp"`
	ThemeTag   string   `json:"themeTag"`
	Confidence float64  `json:"confidence"`
	Metadata   Metadata `json:"metadata"`
}

// Analyzer is the boundary abstraction around the external model call.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	// Analyze sends the new message plus prior turns (oldest first) to the
	// model and returns the parsed follow-up/theme/confidence triple.
	Analyze(ctx context.Context, content string, history []string) (*Result, error)
}

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL     string        // e.g. "https://api.openai.com/v1"
	APIKey      string        // bearer token; required
	Model       string        // e.g. "gpt-3.5-turbo"
	Temperature float64       // sampling temperature
	MaxTokens   int           // completion token cap
	Timeout     time.Duration // per-request HTTP timeout
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// NewClient constructs a Client from Options, applying defaults for any
// unset field except APIKey (validated at config load, not here).
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-3.5-turbo"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 200
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// --- provider wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// payload is the three-field object the model is asked to emit.
type payload struct {
	FollowUp   string  `json:"followUp"`
	ThemeTag   string  `json:"themeTag"`
	Confidence float64 `json:"confidence"`
}

// Analyze implements Analyzer against the configured provider. History turns
// are sent as ordered user messages ahead of the new content.
func (c *Client) Analyze(ctx context.Context, content string, history []string) (*Result, error) {
	start := time.Now()

	msgs := make([]chatMessage, 0, len(history)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	for _, h := range history {
		msgs = append(msgs, chatMessage{Role: "user", Content: h})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: content})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if cr.Error != nil && cr.Error.Message != "" {
			msg = cr.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	raw := strings.TrimSpace(cr.Choices[0].Message.Content)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	parsed, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	log.Info().
		Str("model", c.model).
		Int("tokens", cr.Usage.TotalTokens).
		Int64("latency_ms", latency).
		Msg("llm analysis completed")

	return &Result{
		FollowUp:   parsed.FollowUp,
		ThemeTag:   parsed.ThemeTag,
		Confidence: parsed.Confidence,
		Metadata: Metadata{
			Model:     c.model,
			Tokens:    cr.Usage.TotalTokens,
			LatencyMS: latency,
		},
	}, nil
}

// parsePayload parses the model's raw text as JSON. When the text is not
// pure JSON (models like to wrap answers in prose or code fences), it falls
// back to the first balanced {...} substring.
func parsePayload(raw string) (*payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		return &p, nil
	}
	inner, ok := extractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrParse)
	}
	if err := json.Unmarshal([]byte(inner), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &p, nil
}
