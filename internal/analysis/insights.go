package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/levelx/growth-cli/internal/cost"
	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/pkg/completion"
)

// InsightSynthesizer produces the final growth-insight deliverable by
// comparing the subject against peer baselines in one completion call.
type InsightSynthesizer struct {
	llm completion.Client
}

// NewInsightSynthesizer creates an InsightSynthesizer.
func NewInsightSynthesizer(llm completion.Client) *InsightSynthesizer {
	return &InsightSynthesizer{llm: llm}
}

// peerBaselines holds simple aggregate averages over the peer set, used as
// comparison anchors inside the prompt.
type peerBaselines struct {
	PostsPerWeek float64
	LikesPerPost float64
	ViewsPerPost float64
	GrowthPct    float64
}

// Synthesize requests growth insights for the subject against its peers.
// The response must carry a growth_score and a non-empty insights list;
// anything less raises ValidationError, which is fatal for the run.
func (s *InsightSynthesizer) Synthesize(ctx context.Context, subject *model.AccountProfile, peers []model.PeerMatch, tracker *cost.Tracker) (*model.GrowthInsights, error) {
	if len(peers) > 5 {
		peers = peers[:5]
	}
	baselines := averagePeers(peers)

	resp, err := s.llm.CompleteJSON(ctx, completion.Request{
		Prompt:      buildSynthesisPrompt(subject, peers, baselines),
		Temperature: 0.3,
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "insights: completion for @%s", subject.Handle)
	}
	tracker.RecordCompletion(resp.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	resp.Usage.LogCost(resp.Model, "synthesis")

	// Field-presence checks run against the raw object: a zero growth_score
	// is valid, a missing one is not.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(resp.JSON, &probe); err != nil {
		return nil, eris.Wrap(err, "insights: decode response")
	}
	if _, ok := probe["growth_score"]; !ok {
		return nil, NewValidationError("synthesis", "missing growth_score")
	}
	rawInsights, ok := probe["insights"]
	if !ok {
		return nil, NewValidationError("synthesis", "missing insights")
	}
	var insightList []json.RawMessage
	if err := json.Unmarshal(rawInsights, &insightList); err != nil {
		return nil, NewValidationError("synthesis", "insights is not a list")
	}
	if len(insightList) == 0 {
		return nil, NewValidationError("synthesis", "insights list is empty")
	}

	var result model.GrowthInsights
	if err := json.Unmarshal(resp.JSON, &result); err != nil {
		return nil, eris.Wrap(err, "insights: decode insights")
	}

	for i, insight := range result.Insights {
		if strings.TrimSpace(insight.Title) == "" {
			zap.L().Warn("insight missing title", zap.Int("index", i))
		}
		if strings.TrimSpace(insight.Action) == "" {
			zap.L().Warn("insight missing action", zap.Int("index", i))
		}
	}

	zap.L().Info("synthesis complete",
		zap.String("subject", subject.Handle),
		zap.Float64("growth_score", result.GrowthScore),
		zap.Int("insights", len(result.Insights)),
	)
	return &result, nil
}

func averagePeers(peers []model.PeerMatch) peerBaselines {
	if len(peers) == 0 {
		return peerBaselines{}
	}
	var b peerBaselines
	for _, p := range peers {
		b.PostsPerWeek += p.Analysis.PostsPerWeek
		b.LikesPerPost += p.Analysis.AvgLikesPerPost
		b.ViewsPerPost += p.Analysis.AvgViewsPerPost
		b.GrowthPct += p.Analysis.MonthlyGrowthPct
	}
	n := float64(len(peers))
	b.PostsPerWeek /= n
	b.LikesPerPost /= n
	b.ViewsPerPost /= n
	b.GrowthPct /= n
	return b
}

func buildSynthesisPrompt(subject *model.AccountProfile, peers []model.PeerMatch, baselines peerBaselines) string {
	pr := message.NewPrinter(language.English)

	var sb strings.Builder
	sb.WriteString("You are an expert X/Twitter growth analyst. Generate 5-8 SPECIFIC, actionable insights with NUMBERS.\n\n")

	pr.Fprintf(&sb, "USER PROFILE: @%s\n", subject.Handle)
	pr.Fprintf(&sb, "Followers: %d\n", subject.Followers)
	pr.Fprintf(&sb, "Niche: %s\n", subject.Analysis.PrimaryNiche)
	pr.Fprintf(&sb, "Posts/Week: %g (Peers: %.1f)\n", subject.Analysis.PostsPerWeek, baselines.PostsPerWeek)
	pr.Fprintf(&sb, "Avg Likes: %g (Peers: %.0f)\n", subject.Analysis.AvgLikesPerPost, baselines.LikesPerPost)
	pr.Fprintf(&sb, "Avg Views: %g (Peers: %.0f)\n", subject.Analysis.AvgViewsPerPost, baselines.ViewsPerPost)
	pr.Fprintf(&sb, "Growth: %g%%/month (Peers: %.1f%%/month)\n", subject.Analysis.MonthlyGrowthPct, baselines.GrowthPct)
	pr.Fprintf(&sb, "Visual Content: %s\n", subject.Analysis.VisualRatio)
	pr.Fprintf(&sb, "Content Style: %s\n", subject.Analysis.ContentStyle)

	if len(peers) > 0 {
		sb.WriteString("\nTOP PEERS (Growing Faster):\n")
		for i, peer := range peers {
			pr.Fprintf(&sb, "\nPEER %d: @%s (%d followers)\n", i+1, peer.Handle, peer.Followers)
			pr.Fprintf(&sb, "Posts/Week: %g | Likes: %g | Growth: %g%%/month\n",
				peer.Analysis.PostsPerWeek, peer.Analysis.AvgLikesPerPost, peer.Analysis.MonthlyGrowthPct)
			pr.Fprintf(&sb, "Style: %s\n", peer.Analysis.ContentStyle)
			pr.Fprintf(&sb, "Visual: %s\n", peer.Analysis.VisualRatio)
		}
	} else {
		sb.WriteString("\nNo comparable peers were found; analyze the user's own metrics.\n")
	}

	sb.WriteString(`
Analyze the gaps and generate insights covering:
1. Posting frequency and timing
2. Visual content usage (images, charts, videos)
3. Content format (threads vs single posts)
4. Engagement tactics (questions, CTAs, hooks)
5. Topic strategy and trending participation
6. Hashtag and formatting patterns

Return ONLY valid JSON (no markdown):

{
  "growth_score": 4.5,
  "growth_score_explanation": "one sentence comparing the user's growth to the peer baseline",
  "insights": [
    {
      "title": "Increase Posting to 3x Per Day",
      "category": "posting_frequency",
      "priority": "critical",
      "current_state": "what the user does now, with numbers",
      "peer_state": "what peers do, with numbers",
      "gap_impact": "computed impact of the gap",
      "action": "concrete steps with times and counts",
      "expected_result": "projected numeric outcome",
      "measurement": "how to verify",
      "metrics": {"current_value": 7, "target_value": 15, "gap_percentage": 114}
    }
  ],
  "quick_wins": ["immediately actionable item", "another"],
  "peer_standout_tactics": ["@peer: what they do that stands out"]
}

CRITICAL RULES:
- Use EXACT numbers from data
- Every insight needs a metrics object with numbers
- Calculate gap_percentage and potential gains
- Be specific: "Post 3x/day" not "post more"
- Focus on TOP 5-8 highest-impact changes`)

	return sb.String()
}

// FormatGrowthAdvantage renders the peer's growth delta for display.
func FormatGrowthAdvantage(peer *model.PeerMatch) string {
	return fmt.Sprintf("+%g%% growth/month", peer.Analysis.MonthlyGrowthPct)
}
