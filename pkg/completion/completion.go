// Package completion wraps LLM completion providers behind a single
// JSON-completion contract. Callers send a prompt and get back the raw JSON
// object the model produced; no schema is assumed to be honored by the far
// side, so every caller validates the fields it needs.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Client performs a single JSON-producing completion call.
type Client interface {
	CompleteJSON(ctx context.Context, req Request) (*Response, error)
}

// Request is a single completion request.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// Response carries the parsed JSON object and token accounting.
type Response struct {
	// JSON is the extracted top-level JSON object, guaranteed to unmarshal.
	JSON json.RawMessage
	// Raw is the unprocessed model output, kept for diagnostics.
	Raw string
	// Model is the provider model that served the call, used for pricing.
	Model string
	Usage Usage
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add accumulates another usage into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// LogCost logs token usage with structured zap fields.
func (u Usage) LogCost(provider, phase string) {
	zap.L().Info("completion usage",
		zap.String("provider", provider),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// Error is returned for transport failures, non-2xx responses, and model
// output that does not parse as a JSON object.
type Error struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion (%s): status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// cleanJSON strips markdown code fences and trims to the outermost JSON
// object. Models routinely wrap JSON in ```json fences despite instructions.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseObject validates that text holds a single JSON object and returns it.
func parseObject(provider, text string) (json.RawMessage, error) {
	cleaned := cleanJSON(text)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return nil, &Error{Provider: provider, Err: err}
	}
	return json.RawMessage(cleaned), nil
}
