package completion

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicOption configures the Anthropic-backed client.
type AnthropicOption func(*anthropicClient)

// WithAnthropicModel overrides the default model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *anthropicClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithAnthropicBaseURL overrides the API base URL (used in tests).
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(c *anthropicClient) {
		c.requestOpts = append(c.requestOpts, option.WithBaseURL(baseURL))
	}
}

type anthropicClient struct {
	client      sdk.Client
	model       string
	requestOpts []option.RequestOption
}

// NewAnthropic creates a Client backed by the official anthropic-sdk-go.
func NewAnthropic(apiKey string, opts ...AnthropicOption) Client {
	c := &anthropicClient{
		model:       defaultAnthropicModel,
		requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(c)
	}
	c.client = sdk.NewClient(c.requestOpts...)
	return c
}

func (c *anthropicClient) CompleteJSON(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(req.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &Error{Provider: "anthropic", Err: err}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	obj, err := parseObject("anthropic", text)
	if err != nil {
		return nil, err
	}

	return &Response{
		JSON:  obj,
		Raw:   text,
		Model: c.model,
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
