package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelx/growth-cli/internal/model"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func testAnalysisStruct() model.StructuredAnalysis {
	return model.StructuredAnalysis{
		PrimaryNiche:     "tech startups",
		SecondaryTopics:  []string{"saas", "ai"},
		ContentStyle:     "threads with data",
		PostsPerWeek:     5,
		AvgLikesPerPost:  20,
		MonthlyGrowthPct: 3.5,
		VisualRatio:      "medium",
	}
}

func testProfile(accountID string, at time.Time) *model.AccountProfile {
	return &model.AccountProfile{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Handle:     "subject",
		Followers:  5000,
		Following:  300,
		PostCount:  1200,
		Niche:      "tech",
		Analysis:   testAnalysisStruct(),
		AnalyzedAt: at,
		ExpiresAt:  at.Add(6 * time.Hour),
	}
}

func testPeerRow(accountID, batchID, handle string, score float64, at time.Time) model.PeerMatch {
	return model.PeerMatch{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		BatchID:     batchID,
		Handle:      handle,
		Followers:   6000,
		Analysis:    testAnalysisStruct(),
		MatchScore:  score,
		MatchReason: "Same niche, +20% more followers, 3.5% monthly growth",
		GrowthEdge:  "Posts 5x/week with medium visual content",
		Insights: &model.PeerInsights{
			Characteristics: []string{"daily threads"},
			Differences:     []model.PeerDifference{},
			Tactics:         []model.PeerTactic{},
		},
		SamplePosts: []model.Post{{ID: "p1", Text: "hello", Likes: 10}},
		CreatedAt:   at,
		ExpiresAt:   at.Add(24 * time.Hour),
	}
}

func testRun(accountID string, profile *model.AccountProfile, peers []model.PeerMatch, batchID string, at time.Time) RunRecord {
	profileID := ""
	if profile != nil {
		profileID = profile.ID
	}
	return RunRecord{
		Profile: profile,
		Peers:   peers,
		Analysis: model.AnalysisRecord{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			ProfileID:   profileID,
			PeerBatchID: batchID,
			GrowthScore: 6.5,
			Insights: model.GrowthInsights{
				GrowthScore: 6.5,
				Insights:    []model.Insight{{Title: "Post more", Action: "3x/day"}},
				QuickWins:   []string{"add charts"},
			},
			CreatedAt: at,
		},
	}
}

// --- accounts ---

func TestSQLite_AccountRoundTrip(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	created, err := st.CreateAccount(ctx, "@Subject")
	require.NoError(t, err)
	assert.Equal(t, "Subject", created.Handle)

	got, err := st.GetAccount(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	// Handle lookup is case-insensitive.
	byHandle, err := st.GetAccountByHandle(ctx, "subject")
	require.NoError(t, err)
	require.NotNil(t, byHandle)
	assert.Equal(t, created.ID, byHandle.ID)

	list, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_AccountMissIsNilNil(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	got, err := st.GetAccount(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, got)

	byHandle, err := st.GetAccountByHandle(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, byHandle)
}

func TestSQLite_DuplicateHandleRejected(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	_, err := st.CreateAccount(ctx, "dupe")
	require.NoError(t, err)
	_, err = st.CreateAccount(ctx, "DUPE")
	assert.Error(t, err)
}

// --- profiles ---

func TestSQLite_LatestProfileWins(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	older := testProfile(account.ID, time.Now().UTC().Add(-2*time.Hour))
	newer := testProfile(account.ID, time.Now().UTC())
	newer.Followers = 5500

	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, older, nil, uuid.New().String(), older.AnalyzedAt)))
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, newer, nil, uuid.New().String(), newer.AnalyzedAt)))

	got, err := st.LatestProfile(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, 5500, got.Followers)
	assert.Equal(t, testAnalysisStruct(), got.Analysis)
}

func TestSQLite_LatestProfileMissIsNilNil(t *testing.T) {
	st := openSQLite(t)
	got, err := st.LatestProfile(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- peer batches and history ---

func TestSQLite_CurrentPeerBatchIsLatestSortedByScore(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	oldAt := time.Now().UTC().Add(-48 * time.Hour)
	oldBatch := uuid.New().String()
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, testProfile(account.ID, oldAt),
		[]model.PeerMatch{testPeerRow(account.ID, oldBatch, "ancient", 90, oldAt)},
		oldBatch, oldAt)))

	newAt := time.Now().UTC()
	newBatch := uuid.New().String()
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, nil,
		[]model.PeerMatch{
			testPeerRow(account.ID, newBatch, "lowscore", 40, newAt),
			testPeerRow(account.ID, newBatch, "highscore", 80, newAt),
		},
		newBatch, newAt)))

	batch, err := st.CurrentPeerBatch(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "highscore", batch[0].Handle)
	assert.Equal(t, "lowscore", batch[1].Handle)
	assert.Equal(t, newBatch, batch[0].BatchID)

	// Older batches stay reachable by ID.
	old, err := st.PeersForBatch(ctx, oldBatch)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "ancient", old[0].Handle)
}

func TestSQLite_PeerRoundTripPreservesBlobs(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	at := time.Now().UTC()
	batchID := uuid.New().String()
	peer := testPeerRow(account.ID, batchID, "peera", 75, at)
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, testProfile(account.ID, at),
		[]model.PeerMatch{peer}, batchID, at)))

	got, err := st.PeersForBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, peer.Analysis, got[0].Analysis)
	require.NotNil(t, got[0].Insights)
	assert.Equal(t, peer.Insights.Characteristics, got[0].Insights.Characteristics)
	require.Len(t, got[0].SamplePosts, 1)
	assert.Equal(t, "hello", got[0].SamplePosts[0].Text)
	assert.Equal(t, peer.MatchReason, got[0].MatchReason)
}

func TestSQLite_NilInsightsStayNil(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	at := time.Now().UTC()
	batchID := uuid.New().String()
	peer := testPeerRow(account.ID, batchID, "bare", 50, at)
	peer.Insights = nil
	peer.SamplePosts = nil
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, testProfile(account.ID, at),
		[]model.PeerMatch{peer}, batchID, at)))

	got, err := st.PeersForBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Insights)
	assert.Nil(t, got[0].SamplePosts)
}

func TestSQLite_PeerHistoryLowercasedAndDeduped(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	at := time.Now().UTC()
	b1 := uuid.New().String()
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, testProfile(account.ID, at),
		[]model.PeerMatch{
			testPeerRow(account.ID, b1, "PeerA", 60, at),
			testPeerRow(account.ID, b1, "peerb", 50, at),
		}, b1, at)))

	b2 := uuid.New().String()
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, nil,
		[]model.PeerMatch{testPeerRow(account.ID, b2, "peera", 70, at.Add(time.Hour))},
		b2, at.Add(time.Hour))))

	history, err := st.PeerHistoryHandles(ctx, account.ID, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"peera", "peerb"}, history)
}

func TestSQLite_PeerHistoryHonorsLimit(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	at := time.Now().UTC()
	batchID := uuid.New().String()
	peers := []model.PeerMatch{
		testPeerRow(account.ID, batchID, "one", 60, at),
		testPeerRow(account.ID, batchID, "two", 50, at),
		testPeerRow(account.ID, batchID, "three", 40, at),
	}
	require.NoError(t, st.SaveRun(ctx, testRun(account.ID, testProfile(account.ID, at), peers, batchID, at)))

	history, err := st.PeerHistoryHandles(ctx, account.ID, 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

// --- runs ---

func TestSQLite_SaveRunRollsBackOnFailure(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	at := time.Now().UTC()
	profile := testProfile(account.ID, at)
	batchID := uuid.New().String()
	rec := testRun(account.ID, profile, nil, batchID, at)
	// A foreign key violation on the peer row fails the whole transaction.
	rec.Peers = []model.PeerMatch{
		testPeerRow(uuid.New().String(), batchID, "orphan", 50, at),
	}

	err = st.SaveRun(ctx, rec)
	require.Error(t, err)

	// The profile insert that preceded the failure is rolled back too.
	got, err := st.LatestProfile(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	saved, err := st.LatestAnalysis(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSQLite_AnalysisRoundTripAndListing(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	account, err := st.CreateAccount(ctx, "subject")
	require.NoError(t, err)

	at := time.Now().UTC()
	first := testRun(account.ID, testProfile(account.ID, at.Add(-time.Hour)), nil, uuid.New().String(), at.Add(-time.Hour))
	second := testRun(account.ID, nil, nil, uuid.New().String(), at)
	require.NoError(t, st.SaveRun(ctx, first))
	require.NoError(t, st.SaveRun(ctx, second))

	got, err := st.GetAnalysis(ctx, first.Analysis.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6.5, got.GrowthScore)
	require.Len(t, got.Insights.Insights, 1)
	assert.Equal(t, "Post more", got.Insights.Insights[0].Title)

	latest, err := st.LatestAnalysis(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.Analysis.ID, latest.ID)

	list, err := st.ListAnalyses(ctx, account.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Analysis.ID, list[0].ID)

	limited, err := st.ListAnalyses(ctx, account.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_AnalysisMissIsNilNil(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	got, err := st.GetAnalysis(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, got)

	latest, err := st.LatestAnalysis(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, latest)
}
