package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/levelx/growth-cli/internal/cost"
	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

// FinderOptions holds the numeric eligibility policy for peer validation.
type FinderOptions struct {
	// MinFollowerRatio and MaxFollowerRatio bound peer followers relative
	// to the subject's follower count.
	MinFollowerRatio float64
	MaxFollowerRatio float64
	// MinRecentPosts is the minimum number of recent posts a candidate
	// must have to qualify.
	MinRecentPosts int
}

// DefaultFinderOptions returns the standard eligibility window.
func DefaultFinderOptions() FinderOptions {
	return FinderOptions{
		MinFollowerRatio: 0.8,
		MaxFollowerRatio: 3.0,
		MinRecentPosts:   5,
	}
}

// PeerFinder sources candidate handles from the completion service and
// validates them against real social data.
type PeerFinder struct {
	social   xapi.Client
	llm      completion.Client
	profiles *ProfileBuilder
	fallback *FallbackTable
	opts     FinderOptions
}

// NewPeerFinder creates a PeerFinder.
func NewPeerFinder(social xapi.Client, llm completion.Client, profiles *ProfileBuilder, fallback *FallbackTable, opts FinderOptions) *PeerFinder {
	if fallback == nil {
		fallback = DefaultFallbackTable()
	}
	return &PeerFinder{social: social, llm: llm, profiles: profiles, fallback: fallback, opts: opts}
}

// FindPeers returns up to count validated peers for the subject, avoiding any
// handle in excluded (lower-cased). Candidates are processed in suggestion
// order and validation stops as soon as count peers qualify; the result is
// sorted by descending match score.
func (f *PeerFinder) FindPeers(ctx context.Context, subject *model.AccountProfile, count int, excluded map[string]struct{}, tracker *cost.Tracker) ([]model.PeerMatch, error) {
	candidates := f.sourceCandidates(ctx, subject, count*3+len(excluded), excluded, tracker)

	zap.L().Info("peer candidates sourced",
		zap.String("subject", subject.Handle),
		zap.Int("candidates", len(candidates)),
		zap.Int("excluded", len(excluded)),
	)

	validated := make([]model.PeerMatch, 0, count)
	for _, handle := range candidates {
		peer, err := f.validate(ctx, subject, handle, tracker)
		if err != nil {
			return nil, err
		}
		if peer == nil {
			continue
		}
		validated = append(validated, *peer)
		zap.L().Info("validated peer",
			zap.String("handle", peer.Handle),
			zap.Int("followers", peer.Followers),
			zap.Float64("score", peer.MatchScore),
		)
		if len(validated) >= count {
			break
		}
	}

	sort.SliceStable(validated, func(i, j int) bool {
		return validated[i].MatchScore > validated[j].MatchScore
	})
	if len(validated) > count {
		validated = validated[:count]
	}
	return validated, nil
}

// sourceCandidates asks the completion service for handles similar to the
// subject. On completion failure it falls back to the static table, so
// sourcing itself never fails.
func (f *PeerFinder) sourceCandidates(ctx context.Context, subject *model.AccountProfile, requestCount int, excluded map[string]struct{}, tracker *cost.Tracker) []string {
	resp, err := f.llm.CompleteJSON(ctx, completion.Request{
		Prompt:      buildSourcingPrompt(subject, requestCount, excluded),
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		zap.L().Warn("candidate sourcing failed, using fallback table",
			zap.String("subject", subject.Handle),
			zap.Error(err),
		)
		return f.fallback.Suggest(subject.Analysis.PrimaryNiche, excluded)
	}
	tracker.RecordCompletion(resp.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	var payload struct {
		Handles []string `json:"handles"`
	}
	if err := json.Unmarshal(resp.JSON, &payload); err != nil {
		zap.L().Warn("candidate payload malformed, using fallback table",
			zap.String("subject", subject.Handle),
			zap.Error(err),
		)
		return f.fallback.Suggest(subject.Analysis.PrimaryNiche, excluded)
	}

	cleaned := make([]string, 0, len(payload.Handles))
	seen := make(map[string]struct{}, len(payload.Handles))
	for _, h := range payload.Handles {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "@")))
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		if _, skip := excluded[h]; skip {
			continue
		}
		seen[h] = struct{}{}
		cleaned = append(cleaned, h)
	}
	return cleaned
}

// validate checks one candidate against the eligibility policy. A nil peer
// with nil error means the candidate was skipped, which never fails the
// batch; only completion failures during profile building are fatal.
func (f *PeerFinder) validate(ctx context.Context, subject *model.AccountProfile, handle string, tracker *cost.Tracker) (*model.PeerMatch, error) {
	user, err := f.social.GetUserByHandle(ctx, handle)
	if err != nil {
		zap.L().Warn("candidate fetch failed, skipping", zap.String("handle", handle), zap.Error(err))
		return nil, nil
	}
	tracker.RecordXAPIRequests(1)
	if user == nil {
		zap.L().Warn("candidate handle unknown, skipping", zap.String("handle", handle))
		return nil, nil
	}

	followers := user.PublicMetrics.FollowersCount
	lo := float64(subject.Followers) * f.opts.MinFollowerRatio
	hi := float64(subject.Followers) * f.opts.MaxFollowerRatio
	if float64(followers) < lo || float64(followers) > hi {
		zap.L().Debug("candidate outside follower window",
			zap.String("handle", handle),
			zap.Int("followers", followers),
		)
		return nil, nil
	}

	posts, err := f.social.GetUserTweets(ctx, handle, 20)
	if err != nil {
		zap.L().Warn("candidate posts fetch failed, skipping", zap.String("handle", handle), zap.Error(err))
		return nil, nil
	}
	tracker.RecordXAPIRequests(1)
	if len(posts) < f.opts.MinRecentPosts {
		zap.L().Debug("candidate has too few posts",
			zap.String("handle", handle),
			zap.Int("posts", len(posts)),
		)
		return nil, nil
	}

	profile, err := f.profiles.Build(ctx, user, posts, tracker)
	if err != nil {
		return nil, eris.Wrapf(err, "peers: build profile for candidate @%s", handle)
	}

	return &model.PeerMatch{
		Handle:      profile.Handle,
		Followers:   profile.Followers,
		Analysis:    profile.Analysis,
		MatchScore:  MatchScore(subject, profile),
		MatchReason: matchReason(subject, profile),
		GrowthEdge:  growthEdge(profile),
	}, nil
}

func buildSourcingPrompt(subject *model.AccountProfile, count int, excluded map[string]struct{}) string {
	pr := message.NewPrinter(language.English)

	topics, _ := json.Marshal(subject.Analysis.SecondaryTopics)

	exclusionText := ""
	if len(excluded) > 0 {
		handles := make([]string, 0, len(excluded))
		for h := range excluded {
			handles = append(handles, "@"+h)
		}
		sort.Strings(handles)
		if len(handles) > 20 {
			handles = handles[:20]
		}
		exclusionText = "\n\nDO NOT SUGGEST THESE (already analyzed): " + strings.Join(handles, ", ")
	}

	var sb strings.Builder
	pr.Fprintf(&sb, "You are an expert X/Twitter analyst. Suggest %d REAL, DIFFERENT X account handles similar to @%s.\n\n", count, subject.Handle)
	pr.Fprintf(&sb, "USER: @%s\n", subject.Handle)
	pr.Fprintf(&sb, "- Followers: %d\n", subject.Followers)
	pr.Fprintf(&sb, "- Niche: %s\n", subject.Analysis.PrimaryNiche)
	pr.Fprintf(&sb, "- Topics: %s\n\n", topics)
	sb.WriteString("CRITICAL REQUIREMENTS:\n")
	sb.WriteString("- Return ONLY real, active X accounts that exist\n")
	sb.WriteString("- Same niche + overlapping topics\n")
	pr.Fprintf(&sb, "- Follower count: %d to %d\n",
		int(float64(subject.Followers)*0.8), int(float64(subject.Followers)*3))
	sb.WriteString("- Must be actively posting\n")
	sb.WriteString("- Do NOT make up accounts\n")
	sb.WriteString("- Suggest DIFFERENT accounts than before")
	sb.WriteString(exclusionText)
	sb.WriteString("\n\nReturn ONLY a JSON array of NEW handles (no other text):\n\n")
	sb.WriteString(`{"handles": ["handle1", "handle2", "handle3", ...]}`)

	return sb.String()
}

// MatchScore computes the 0-100 similarity heuristic between subject and
// peer. Follower ratio is defined as 1 when the subject has zero followers.
func MatchScore(subject, peer *model.AccountProfile) float64 {
	score := 0.0

	subjectNiche := strings.ToLower(subject.Analysis.PrimaryNiche)
	peerNiche := strings.ToLower(peer.Analysis.PrimaryNiche)
	if subjectNiche != "" && peerNiche != "" &&
		(strings.Contains(peerNiche, subjectNiche) || strings.Contains(subjectNiche, peerNiche)) {
		score += 40
	}

	overlap := topicOverlap(subject.Analysis.SecondaryTopics, peer.Analysis.SecondaryTopics)
	score += minFloat(float64(overlap)*10, 30)

	ratio := 1.0
	if subject.Followers > 0 {
		ratio = float64(peer.Followers) / float64(subject.Followers)
	}
	switch {
	case ratio >= 0.8 && ratio <= 2.0:
		score += 20
	case ratio >= 0.5 && ratio <= 3.0:
		score += 10
	}

	switch growth := peer.Analysis.MonthlyGrowthPct; {
	case growth > 5:
		score += 10
	case growth > 2:
		score += 5
	}

	return minFloat(score, 100)
}

func topicOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = struct{}{}
	}
	count := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := set[key]; ok {
			count++
		}
	}
	return count
}

func matchReason(subject, peer *model.AccountProfile) string {
	diff := 0.0
	if subject.Followers > 0 {
		diff = float64(peer.Followers-subject.Followers) / float64(subject.Followers) * 100
	}
	return fmt.Sprintf("Same niche, %+.0f%% more followers, %.1f%% monthly growth",
		diff, peer.Analysis.MonthlyGrowthPct)
}

func growthEdge(peer *model.AccountProfile) string {
	visual := peer.Analysis.VisualRatio
	if visual == "" {
		visual = "medium"
	}
	return fmt.Sprintf("Posts %gx/week with %s visual content",
		peer.Analysis.PostsPerWeek, visual)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
