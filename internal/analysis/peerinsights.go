package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/levelx/growth-cli/internal/cost"
	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

// PeerInsightAugmenter derives post-grounded tactical insights for one peer.
// Every failure path degrades instead of propagating: the augmenter always
// returns a usable (possibly sparse) insights value.
type PeerInsightAugmenter struct {
	social xapi.Client
	llm    completion.Client
}

// NewPeerInsightAugmenter creates a PeerInsightAugmenter.
func NewPeerInsightAugmenter(social xapi.Client, llm completion.Client) *PeerInsightAugmenter {
	return &PeerInsightAugmenter{social: social, llm: llm}
}

// Augment fetches up to 10 recent posts for the peer and asks the completion
// service for observed characteristics, differences, and tactics grounded in
// those posts. Without posts it returns a degraded numeric-only result; on
// completion failure the tactical lists come back empty.
func (a *PeerInsightAugmenter) Augment(ctx context.Context, subject *model.AccountProfile, peer *model.PeerMatch, tracker *cost.Tracker) (*model.PeerInsights, []model.Post) {
	var posts []xapi.Tweet
	tweets, err := a.social.GetUserTweets(ctx, peer.Handle, 10)
	if err != nil {
		zap.L().Warn("peer posts fetch failed, degrading insights",
			zap.String("handle", peer.Handle),
			zap.Error(err),
		)
	} else {
		tracker.RecordXAPIRequests(1)
		posts = tweets
	}

	if len(posts) == 0 {
		return degradedInsights(peer), nil
	}
	if len(posts) > 5 {
		posts = posts[:5]
	}

	resp, err := a.llm.CompleteJSON(ctx, completion.Request{
		Prompt:      buildPeerInsightPrompt(subject, peer, posts),
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		zap.L().Warn("peer insight completion failed, returning empty lists",
			zap.String("handle", peer.Handle),
			zap.Error(err),
		)
		return &model.PeerInsights{
			Characteristics: []string{},
			Differences:     []model.PeerDifference{},
			Tactics:         []model.PeerTactic{},
		}, samplePosts(posts)
	}
	tracker.RecordCompletion(resp.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	resp.Usage.LogCost(resp.Model, "peer_insights")

	var insights model.PeerInsights
	if err := json.Unmarshal(resp.JSON, &insights); err != nil {
		zap.L().Warn("peer insight payload malformed, returning empty lists",
			zap.String("handle", peer.Handle),
			zap.Error(err),
		)
		return &model.PeerInsights{
			Characteristics: []string{},
			Differences:     []model.PeerDifference{},
			Tactics:         []model.PeerTactic{},
		}, samplePosts(posts)
	}

	return &insights, samplePosts(posts)
}

// degradedInsights builds three numeric observations from profile fields
// alone, used when no posts are available.
func degradedInsights(peer *model.PeerMatch) *model.PeerInsights {
	pr := message.NewPrinter(language.English)
	return &model.PeerInsights{
		Characteristics: []string{
			fmt.Sprintf("Growing at %.1f%% per month", peer.Analysis.MonthlyGrowthPct),
			pr.Sprintf("Has %d followers", peer.Followers),
			fmt.Sprintf("Posts %gx per week", peer.Analysis.PostsPerWeek),
		},
		Differences: []model.PeerDifference{},
		Tactics:     []model.PeerTactic{},
	}
}

// samplePosts keeps the first three posts for persistence alongside the peer.
func samplePosts(tweets []xapi.Tweet) []model.Post {
	n := len(tweets)
	if n > 3 {
		n = 3
	}
	out := make([]model.Post, 0, n)
	for _, t := range tweets[:n] {
		out = append(out, model.Post{
			ID:        t.ID,
			Text:      t.Text,
			Likes:     t.PublicMetrics.LikeCount,
			Retweets:  t.PublicMetrics.RetweetCount,
			Replies:   t.PublicMetrics.ReplyCount,
			Views:     t.PublicMetrics.ImpressionCount,
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}

func buildPeerInsightPrompt(subject *model.AccountProfile, peer *model.PeerMatch, posts []xapi.Tweet) string {
	pr := message.NewPrinter(language.English)

	var postsText strings.Builder
	for i, p := range posts {
		fmt.Fprintf(&postsText, "\nPost %d (%d likes, %d RTs):\n%s\n",
			i+1, p.PublicMetrics.LikeCount, p.PublicMetrics.RetweetCount,
			truncateRunes(p.Text, 300))
	}

	var sb strings.Builder
	pr.Fprintf(&sb, "Analyze REAL DATA from @%s vs @%s.\n\n", peer.Handle, subject.Handle)
	pr.Fprintf(&sb, "USER (@%s):\n", subject.Handle)
	pr.Fprintf(&sb, "- Followers: %d\n", subject.Followers)
	pr.Fprintf(&sb, "- Posts/Week: %g\n", subject.Analysis.PostsPerWeek)
	pr.Fprintf(&sb, "- Avg Likes: %g\n\n", subject.Analysis.AvgLikesPerPost)
	pr.Fprintf(&sb, "PEER (@%s):\n", peer.Handle)
	pr.Fprintf(&sb, "- Followers: %d\n", peer.Followers)
	pr.Fprintf(&sb, "- Posts/Week: %g\n", peer.Analysis.PostsPerWeek)
	pr.Fprintf(&sb, "- Avg Likes: %g\n\n", peer.Analysis.AvgLikesPerPost)
	pr.Fprintf(&sb, "REAL POSTS FROM @%s:\n%s\n", peer.Handle, postsText.String())
	sb.WriteString(`
Analyze these ACTUAL posts and find SPECIFIC patterns. Return ONLY valid JSON:

{
  "unique_characteristics": [
    "SPECIFIC observation from the posts above",
    "SPECIFIC pattern",
    "SPECIFIC tactic"
  ],
  "what_they_do_differently": [
    {
      "category": "Posting Frequency",
      "user_approach": "what the user does",
      "peer_approach": "what the peer does",
      "impact": "calculate the difference",
      "example": "reference a specific post from above"
    }
  ],
  "tactical_insights": [
    {
      "tactic": "specific tactic from the posts",
      "how_they_do_it": "based on the actual posts above",
      "why_it_works": "explain based on engagement numbers",
      "how_to_copy": "actionable steps",
      "expected_result": "based on their actual performance"
    }
  ]
}

CRITICAL: Base ALL insights on the ACTUAL posts provided. No generic advice!`)

	return sb.String()
}
