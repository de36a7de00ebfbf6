package analysis

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

// --- X API Mock ---

type mockSocialClient struct {
	mock.Mock
}

func (m *mockSocialClient) GetUserByHandle(ctx context.Context, handle string) (*xapi.User, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*xapi.User), args.Error(1)
}

func (m *mockSocialClient) GetUserTweets(ctx context.Context, handle string, maxResults int) ([]xapi.Tweet, error) {
	args := m.Called(ctx, handle, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]xapi.Tweet), args.Error(1)
}

// --- Completion Mock ---

type mockCompletionClient struct {
	mock.Mock
}

func (m *mockCompletionClient) CompleteJSON(ctx context.Context, req completion.Request) (*completion.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*completion.Response), args.Error(1)
}

// promptOf extracts the prompt from a mocked CompleteJSON invocation.
func promptOf(args mock.Arguments) string {
	return args.Get(1).(completion.Request).Prompt
}

// jsonResponse builds a completion response around a raw JSON payload.
func jsonResponse(body string) *completion.Response {
	return &completion.Response{
		JSON:  []byte(body),
		Raw:   body,
		Model: "claude-haiku-4-5-20251001",
		Usage: completion.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

// --- Ensure interface compliance ---
var (
	_ xapi.Client       = (*mockSocialClient)(nil)
	_ completion.Client = (*mockCompletionClient)(nil)
)
