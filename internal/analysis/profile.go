// Package analysis contains the orchestration core: profile building, peer
// sourcing and validation, per-peer insight augmentation, and growth-insight
// synthesis, coordinated under TTL caching and peer-exclusion history.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/levelx/growth-cli/internal/cost"
	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

// ProfileBuilder turns raw social metrics and recent posts into a normalized
// account profile via one completion call.
type ProfileBuilder struct {
	social xapi.Client
	llm    completion.Client
}

// NewProfileBuilder creates a ProfileBuilder.
func NewProfileBuilder(social xapi.Client, llm completion.Client) *ProfileBuilder {
	return &ProfileBuilder{social: social, llm: llm}
}

// BuildFromHandle fetches the account's metrics and recent posts, then builds
// a profile. Returns NotFoundError when the handle does not exist.
func (b *ProfileBuilder) BuildFromHandle(ctx context.Context, handle string, tracker *cost.Tracker) (*model.AccountProfile, error) {
	handle = strings.TrimPrefix(handle, "@")

	user, err := b.social.GetUserByHandle(ctx, handle)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: fetch user @%s", handle)
	}
	tracker.RecordXAPIRequests(1)
	if user == nil {
		return nil, NewNotFoundError("handle", handle)
	}

	posts, err := b.social.GetUserTweets(ctx, handle, 20)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: fetch posts @%s", handle)
	}
	tracker.RecordXAPIRequests(1)

	return b.Build(ctx, user, posts, tracker)
}

// Build constructs a profile from pre-fetched data. The peer validator uses
// this entry point so candidate fetches are not repeated.
func (b *ProfileBuilder) Build(ctx context.Context, user *xapi.User, posts []xapi.Tweet, tracker *cost.Tracker) (*model.AccountProfile, error) {
	prompt := buildProfilePrompt(user, posts)

	resp, err := b.llm.CompleteJSON(ctx, completion.Request{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "profile: completion for @%s", user.Username)
	}
	tracker.RecordCompletion(resp.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	resp.Usage.LogCost(resp.Model, "profile")

	var sa model.StructuredAnalysis
	if err := json.Unmarshal(resp.JSON, &sa); err != nil {
		return nil, eris.Wrapf(err, "profile: decode analysis for @%s", user.Username)
	}
	if strings.TrimSpace(sa.PrimaryNiche) == "" {
		return nil, NewValidationError("profile", fmt.Sprintf("missing primary_niche for @%s", user.Username))
	}

	return &model.AccountProfile{
		Handle:     user.Username,
		Followers:  user.PublicMetrics.FollowersCount,
		Following:  user.PublicMetrics.FollowingCount,
		PostCount:  user.PublicMetrics.TweetCount,
		Niche:      SimpleNiche(sa.PrimaryNiche),
		Analysis:   sa,
		AnalyzedAt: time.Now().UTC(),
	}, nil
}

func buildProfilePrompt(user *xapi.User, posts []xapi.Tweet) string {
	pr := message.NewPrinter(language.English)

	var sb strings.Builder
	pr.Fprintf(&sb, "You are an expert X/Twitter analyst. Build a structured profile of @%s.\n\n", user.Username)
	pr.Fprintf(&sb, "ACCOUNT: @%s\n", user.Username)
	pr.Fprintf(&sb, "- Followers: %d\n", user.PublicMetrics.FollowersCount)
	pr.Fprintf(&sb, "- Following: %d\n", user.PublicMetrics.FollowingCount)
	pr.Fprintf(&sb, "- Total posts: %d\n", user.PublicMetrics.TweetCount)

	if len(posts) > 0 {
		sb.WriteString("\nRECENT POSTS:\n")
		for i, p := range posts {
			if i >= 10 {
				break
			}
			pr.Fprintf(&sb, "\nPost %d (%d likes, %d RTs, %d views):\n%s\n",
				i+1, p.PublicMetrics.LikeCount, p.PublicMetrics.RetweetCount,
				p.PublicMetrics.ImpressionCount, truncateRunes(p.Text, 300))
		}
	}

	sb.WriteString(`
Analyze the account and return ONLY valid JSON (no markdown):

{
  "primary_niche": "detailed niche description",
  "secondary_topics": ["topic1", "topic2", "topic3"],
  "content_style": "threads with data, polls, educational",
  "posting_frequency_per_week": 7,
  "average_likes_per_post": 25,
  "average_views_per_post": 1200,
  "estimated_monthly_follower_growth_percent": 3.5,
  "visual_content_ratio": "low|medium|high",
  "key_hashtags": ["#tag1", "#tag2"],
  "strengths": ["strength1", "strength2"],
  "weaknesses_for_growth": ["weakness1", "weakness2"]
}

Base the estimates on the ACTUAL posts and metrics above. primary_niche is required.`)

	return sb.String()
}

// nicheKeywords maps broad niche categories to trigger keywords. Order
// matters: the first category with a matching keyword wins.
var nicheKeywords = []struct {
	niche    string
	keywords []string
}{
	{"tech", []string{"technology", "software", "developer", "programming"}},
	{"business", []string{"business", "entrepreneur", "startup", "founder"}},
	{"marketing", []string{"marketing", "content", "seo"}},
	{"finance", []string{"finance", "investing", "trading", "stocks", "crypto"}},
}

// SimpleNiche collapses a free-form niche description into a broad category.
func SimpleNiche(primaryNiche string) string {
	lower := strings.ToLower(primaryNiche)
	for _, entry := range nicheKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.niche
			}
		}
	}
	return "other"
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
