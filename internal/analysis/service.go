package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/levelx/growth-cli/internal/cost"
	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/internal/store"
	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

// Options holds the orchestration policy knobs.
type Options struct {
	// PeerCount is the target number of peers per batch.
	PeerCount int
	// ProfileTTL is how long a profile snapshot stays reusable.
	ProfileTTL time.Duration
	// PeerTTL is how long a peer batch stays reusable.
	PeerTTL time.Duration
	// ExclusionLookback caps how many historical peer rows feed the
	// exclusion set. History is append-only and grows without bound, so
	// the lookback keeps sourcing prompts and queries a fixed size.
	ExclusionLookback int
	// Finder is the numeric eligibility policy for peer validation.
	Finder FinderOptions
}

// DefaultOptions returns the standard orchestration policy.
func DefaultOptions() Options {
	return Options{
		PeerCount:         5,
		ProfileTTL:        6 * time.Hour,
		PeerTTL:           24 * time.Hour,
		ExclusionLookback: 500,
		Finder:            DefaultFinderOptions(),
	}
}

// Service is the analysis orchestrator. It owns the caching, staleness, and
// peer-deduplication policy; collaborators own only their own mechanics.
type Service struct {
	store     store.Store
	profiles  *ProfileBuilder
	finder    *PeerFinder
	augmenter *PeerInsightAugmenter
	synth     *InsightSynthesizer
	calc      *cost.Calculator
	opts      Options
}

// NewService wires an orchestrator from its collaborators.
func NewService(st store.Store, social xapi.Client, llm completion.Client, calc *cost.Calculator, opts Options) *Service {
	if opts.PeerCount <= 0 {
		opts.PeerCount = 5
	}
	if opts.ProfileTTL <= 0 {
		opts.ProfileTTL = 6 * time.Hour
	}
	if opts.PeerTTL <= 0 {
		opts.PeerTTL = 24 * time.Hour
	}
	if opts.ExclusionLookback <= 0 {
		opts.ExclusionLookback = 500
	}

	profiles := NewProfileBuilder(social, llm)
	return &Service{
		store:     st,
		profiles:  profiles,
		finder:    NewPeerFinder(social, llm, profiles, DefaultFallbackTable(), opts.Finder),
		augmenter: NewPeerInsightAugmenter(social, llm),
		synth:     NewInsightSynthesizer(llm),
		calc:      calc,
		opts:      opts,
	}
}

// RunOptions controls cache bypass for one run.
type RunOptions struct {
	ForceRefreshProfile bool
	ForceRefreshPeers   bool
}

// RunFullAnalysis executes one orchestration run for the account. All writes
// are deferred and committed in a single transaction at the end, so a
// failure at any stage leaves no partial run visible.
func (s *Service) RunFullAnalysis(ctx context.Context, accountID string, opts RunOptions) (*model.AnalysisResult, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, NewNotFoundError("account", accountID)
	}

	zap.L().Info("starting analysis",
		zap.String("account_id", account.ID),
		zap.String("handle", account.Handle),
	)

	tracker := cost.NewTracker(s.calc)
	now := time.Now().UTC()

	profile, newProfile, err := s.obtainProfile(ctx, account, opts.ForceRefreshProfile, now, tracker)
	if err != nil {
		return nil, err
	}

	peers, newPeers, batchID, err := s.obtainPeers(ctx, account, profile, opts.ForceRefreshPeers, now, tracker)
	if err != nil {
		return nil, err
	}

	insights, err := s.synth.Synthesize(ctx, profile, peers, tracker)
	if err != nil {
		return nil, err
	}

	record := model.AnalysisRecord{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		ProfileID:   profile.ID,
		PeerBatchID: batchID,
		GrowthScore: insights.GrowthScore,
		Insights:    *insights,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.SaveRun(ctx, store.RunRecord{
		Profile:  newProfile,
		Peers:    newPeers,
		Analysis: record,
	}); err != nil {
		return nil, eris.Wrap(err, "analysis: persist run")
	}

	summary := tracker.Snapshot()
	zap.L().Info("analysis complete",
		zap.String("analysis_id", record.ID),
		zap.String("handle", account.Handle),
		zap.Int("peers", len(peers)),
		zap.Bool("profile_cached", newProfile == nil),
		zap.Bool("peers_cached", newPeers == nil),
		zap.Float64("cost_usd", summary.TotalUSD),
	)

	return &model.AnalysisResult{
		AnalysisID:    record.ID,
		Profile:       *profile,
		Peers:         peers,
		Insights:      *insights,
		ProfileCached: newProfile == nil,
		PeersCached:   newPeers == nil,
		CostUSD:       summary.TotalUSD,
		CreatedAt:     record.CreatedAt,
	}, nil
}

// obtainProfile reuses a non-expired cached profile verbatim or builds a
// fresh one. The second return is non-nil only for a freshly built profile
// that still needs persisting.
func (s *Service) obtainProfile(ctx context.Context, account *model.Account, force bool, now time.Time, tracker *cost.Tracker) (*model.AccountProfile, *model.AccountProfile, error) {
	if !force {
		cached, err := s.store.LatestProfile(ctx, account.ID)
		if err != nil {
			return nil, nil, err
		}
		if cached != nil && !cached.Expired(now) {
			zap.L().Info("using cached profile",
				zap.String("handle", account.Handle),
				zap.Time("expires_at", cached.ExpiresAt),
			)
			return cached, nil, nil
		}
	}

	built, err := s.profiles.BuildFromHandle(ctx, account.Handle, tracker)
	if err != nil {
		return nil, nil, err
	}
	built.ID = uuid.New().String()
	built.AccountID = account.ID
	built.ExpiresAt = built.AnalyzedAt.Add(s.opts.ProfileTTL)

	zap.L().Info("built fresh profile",
		zap.String("handle", account.Handle),
		zap.Int("followers", built.Followers),
		zap.String("niche", built.Niche),
	)
	return built, built, nil
}

// obtainPeers reuses the current non-expired batch when it is full, or
// sources a new batch excluding every historically surfaced handle. A zero
// result triggers exactly one retry without exclusions; an empty batch after
// that is valid. The second return is non-nil only for a new batch.
func (s *Service) obtainPeers(ctx context.Context, account *model.Account, profile *model.AccountProfile, force bool, now time.Time, tracker *cost.Tracker) ([]model.PeerMatch, []model.PeerMatch, string, error) {
	if !force {
		current, err := s.store.CurrentPeerBatch(ctx, account.ID)
		if err != nil {
			return nil, nil, "", err
		}
		if len(current) >= s.opts.PeerCount && current[0].ExpiresAt.After(now) {
			zap.L().Info("using cached peer batch",
				zap.String("handle", account.Handle),
				zap.String("batch_id", current[0].BatchID),
				zap.Int("peers", len(current)),
			)
			return current, nil, current[0].BatchID, nil
		}
	}

	history, err := s.store.PeerHistoryHandles(ctx, account.ID, s.opts.ExclusionLookback)
	if err != nil {
		return nil, nil, "", err
	}
	excluded := make(map[string]struct{}, len(history))
	for _, h := range history {
		excluded[strings.ToLower(h)] = struct{}{}
	}

	found, err := s.finder.FindPeers(ctx, profile, s.opts.PeerCount, excluded, tracker)
	if err != nil {
		return nil, nil, "", err
	}
	if len(found) == 0 && len(excluded) > 0 {
		zap.L().Warn("no new peers found, retrying without exclusions",
			zap.String("handle", account.Handle),
			zap.Int("excluded", len(excluded)),
		)
		found, err = s.finder.FindPeers(ctx, profile, s.opts.PeerCount, map[string]struct{}{}, tracker)
		if err != nil {
			return nil, nil, "", err
		}
	}

	batchID := uuid.New().String()
	created := time.Now().UTC()
	for i := range found {
		found[i].ID = uuid.New().String()
		found[i].AccountID = account.ID
		found[i].BatchID = batchID
		found[i].CreatedAt = created
		found[i].ExpiresAt = created.Add(s.opts.PeerTTL)

		insights, posts := s.augmenter.Augment(ctx, profile, &found[i], tracker)
		if insights == nil {
			zap.L().Warn("peer augmentation returned nothing",
				zap.String("handle", found[i].Handle),
			)
		}
		found[i].Insights = insights
		found[i].SamplePosts = posts
	}

	return found, found, batchID, nil
}
