package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelx/growth-cli/internal/model"
)

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock v4 requires the
// expected argument count to match exactly, even when values don't matter.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newPostgresMock(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresWithPool(mock)
}

func TestPostgres_GetAccount(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, handle, created_at FROM accounts WHERE id = $1`)).
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "handle", "created_at"}).
			AddRow("acc-1", "subject", now))

	got, err := st.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "subject", got.Handle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAccountMissIsNilNil(t *testing.T) {
	mock, st := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, handle, created_at FROM accounts WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "handle", "created_at"}))

	got, err := st.GetAccount(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAccountByHandleIsCaseInsensitive(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE lower(handle) = lower($1)`)).
		WithArgs("Subject").
		WillReturnRows(pgxmock.NewRows([]string{"id", "handle", "created_at"}).
			AddRow("acc-1", "subject", now))

	got, err := st.GetAccountByHandle(context.Background(), "@Subject")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acc-1", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LatestProfileRoundTrip(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	analysis := model.StructuredAnalysis{PrimaryNiche: "tech startups", PostsPerWeek: 5}
	analysisJSON, err := json.Marshal(analysis)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)SELECT .+ FROM account_profiles WHERE account_id`).
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "handle", "followers", "following", "post_count",
			"niche", "analysis", "analyzed_at", "expires_at",
		}).AddRow("prof-1", "acc-1", "subject", 5000, 300, 1200,
			"tech", analysisJSON, now, now.Add(6*time.Hour)))

	got, err := st.LatestProfile(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "prof-1", got.ID)
	assert.Equal(t, analysis, got.Analysis)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LatestProfileMissIsNilNil(t *testing.T) {
	mock, st := newPostgresMock(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM account_profiles WHERE account_id`).
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "handle", "followers", "following", "post_count",
			"niche", "analysis", "analyzed_at", "expires_at",
		}))

	got, err := st.LatestProfile(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PeerHistoryHandles(t *testing.T) {
	mock, st := newPostgresMock(t)

	mock.ExpectQuery(`SELECT peer_handle FROM peer_matches WHERE account_id`).
		WithArgs("acc-1", 500).
		WillReturnRows(pgxmock.NewRows([]string{"peer_handle"}).
			AddRow("PeerA").AddRow("peerb").AddRow("peera"))

	handles, err := st.PeerHistoryHandles(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"peera", "peerb"}, handles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CurrentPeerBatch(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	profileJSON, err := json.Marshal(model.StructuredAnalysis{PrimaryNiche: "tech"})
	require.NoError(t, err)
	insightsJSON, err := json.Marshal(model.PeerInsights{Characteristics: []string{"daily threads"}})
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "account_id", "batch_id", "peer_handle", "peer_followers", "peer_profile",
		"match_score", "match_reason", "growth_edge", "peer_insights", "example_posts",
		"created_at", "expires_at",
	}).
		AddRow("pm-1", "acc-1", "batch-1", "peera", 6000, profileJSON,
			80.0, "reason", "edge", insightsJSON, []byte(nil), now, now.Add(24*time.Hour)).
		AddRow("pm-2", "acc-1", "batch-1", "peerb", 4500, profileJSON,
			55.0, "reason", "edge", []byte(nil), []byte(nil), now, now.Add(24*time.Hour))

	mock.ExpectQuery(`(?s)SELECT .+ FROM peer_matches\s+WHERE batch_id = \(`).
		WithArgs("acc-1").
		WillReturnRows(rows)

	batch, err := st.CurrentPeerBatch(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "peera", batch[0].Handle)
	require.NotNil(t, batch[0].Insights)
	assert.Equal(t, []string{"daily threads"}, batch[0].Insights.Characteristics)
	assert.Nil(t, batch[1].Insights)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRunCommitsAllRows(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	profile := &model.AccountProfile{
		ID: "prof-1", AccountID: "acc-1", Handle: "subject", Followers: 5000,
		Analysis: model.StructuredAnalysis{PrimaryNiche: "tech"}, AnalyzedAt: now,
		ExpiresAt: now.Add(6 * time.Hour),
	}
	peer := model.PeerMatch{
		ID: "pm-1", AccountID: "acc-1", BatchID: "batch-1", Handle: "peera",
		Followers: 6000, Analysis: model.StructuredAnalysis{PrimaryNiche: "tech"},
		MatchScore: 80, CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}
	rec := RunRecord{
		Profile: profile,
		Peers:   []model.PeerMatch{peer},
		Analysis: model.AnalysisRecord{
			ID: "an-1", AccountID: "acc-1", ProfileID: "prof-1", PeerBatchID: "batch-1",
			GrowthScore: 6.5,
			Insights:    model.GrowthInsights{GrowthScore: 6.5, Insights: []model.Insight{{Title: "t"}}},
			CreatedAt:   now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO account_profiles`).
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO peer_matches`).
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, st.SaveRun(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRunSkipsNilProfileAndEmptyPeers(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	rec := RunRecord{
		Peers: []model.PeerMatch{},
		Analysis: model.AnalysisRecord{
			ID: "an-1", AccountID: "acc-1", PeerBatchID: "batch-1",
			Insights:  model.GrowthInsights{Insights: []model.Insight{{Title: "t"}}},
			CreatedAt: now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, st.SaveRun(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRunRollsBackOnInsertFailure(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	rec := RunRecord{
		Analysis: model.AnalysisRecord{
			ID: "an-1", AccountID: "acc-1", PeerBatchID: "batch-1", CreatedAt: now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs(anyArgs(7)...).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := st.SaveRun(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert analysis")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAnalysisRoundTrip(t *testing.T) {
	mock, st := newPostgresMock(t)
	now := time.Now().UTC()

	insights := model.GrowthInsights{GrowthScore: 6.5, Insights: []model.Insight{{Title: "Post more"}}}
	insightsJSON, err := json.Marshal(insights)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM analyses WHERE id = $1`)).
		WithArgs("an-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "profile_id", "peer_batch_id", "growth_score", "insights", "created_at",
		}).AddRow("an-1", "acc-1", "prof-1", "batch-1", 6.5, insightsJSON, now))

	got, err := st.GetAnalysis(context.Background(), "an-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6.5, got.GrowthScore)
	require.Len(t, got.Insights.Insights, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAnalysisMissIsNilNil(t *testing.T) {
	mock, st := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM analyses WHERE id = $1`)).
		WithArgs(uuid.Nil.String()).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "profile_id", "peer_batch_id", "growth_score", "insights", "created_at",
		}))

	got, err := st.GetAnalysis(context.Background(), uuid.Nil.String())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
