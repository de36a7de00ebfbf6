package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultGrokBaseURL = "https://api.x.ai/v1"
	defaultGrokModel   = "grok-3-mini"
)

// GrokOption configures the x.ai-backed client.
type GrokOption func(*grokClient)

// WithGrokBaseURL overrides the default API base URL.
func WithGrokBaseURL(url string) GrokOption {
	return func(c *grokClient) {
		c.baseURL = url
	}
}

// WithGrokModel overrides the default model.
func WithGrokModel(model string) GrokOption {
	return func(c *grokClient) {
		c.model = model
	}
}

// WithGrokHTTPClient overrides the default http.Client.
func WithGrokHTTPClient(hc *http.Client) GrokOption {
	return func(c *grokClient) {
		c.http = hc
	}
}

type grokClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewGrok creates a Client backed by the x.ai chat-completions API.
func NewGrok(apiKey string, opts ...GrokOption) Client {
	c := &grokClient{
		apiKey:  apiKey,
		baseURL: defaultGrokBaseURL,
		model:   defaultGrokModel,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type grokChatRequest struct {
	Model       string        `json:"model"`
	Messages    []grokMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   *int64        `json:"max_tokens,omitempty"`
}

type grokMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type grokChatResponse struct {
	Choices []struct {
		Message grokMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *grokClient) CompleteJSON(ctx context.Context, req Request) (*Response, error) {
	chatReq := grokChatRequest{
		Model:       c.model,
		Messages:    []grokMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = &req.MaxTokens
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, &Error{Provider: "grok", Err: eris.Wrap(err, "marshal request")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: "grok", Err: eris.Wrap(err, "create request")}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "grok", Err: eris.Wrap(err, "send request")}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: "grok", Err: eris.Wrap(err, "read response")}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:   "grok",
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status: %s", string(respBody)),
		}
	}

	var chatResp grokChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &Error{Provider: "grok", Err: eris.Wrap(err, "unmarshal response")}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &Error{Provider: "grok", Err: eris.New("no choices in response")}
	}

	text := chatResp.Choices[0].Message.Content
	obj, err := parseObject("grok", text)
	if err != nil {
		return nil, err
	}

	return &Response{
		JSON:  obj,
		Raw:   text,
		Model: c.model,
		Usage: Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		},
	}, nil
}
