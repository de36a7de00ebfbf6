package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/levelx/growth-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock's pool
// mock satisfies it, which is what the postgres tests run against.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	handle     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_handle ON accounts(lower(handle));

CREATE TABLE IF NOT EXISTS account_profiles (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id),
	handle      TEXT NOT NULL,
	followers   BIGINT NOT NULL DEFAULT 0,
	following   BIGINT NOT NULL DEFAULT 0,
	post_count  BIGINT NOT NULL DEFAULT 0,
	niche       TEXT NOT NULL DEFAULT '',
	analysis    JSONB NOT NULL,
	analyzed_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS peer_matches (
	id             TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL REFERENCES accounts(id),
	batch_id       TEXT NOT NULL,
	peer_handle    TEXT NOT NULL,
	peer_followers BIGINT NOT NULL DEFAULT 0,
	peer_profile   JSONB NOT NULL,
	match_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	match_reason   TEXT NOT NULL DEFAULT '',
	growth_edge    TEXT NOT NULL DEFAULT '',
	peer_insights  JSONB,
	example_posts  JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id            TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES accounts(id),
	profile_id    TEXT NOT NULL,
	peer_batch_id TEXT NOT NULL,
	growth_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	insights      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_account ON account_profiles(account_id, analyzed_at DESC);
CREATE INDEX IF NOT EXISTS idx_peer_matches_account ON peer_matches(account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_peer_matches_batch ON peer_matches(batch_id);
CREATE INDEX IF NOT EXISTS idx_analyses_account ON analyses(account_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, handle string) (*model.Account, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	handle = strings.TrimPrefix(handle, "@")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, handle, created_at) VALUES ($1, $2, $3)`,
		id, handle, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert account %s", handle)
	}
	return &model.Account{ID: id, Handle: handle, CreatedAt: now}, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.scanAccountRow(s.pool.QueryRow(ctx,
		`SELECT id, handle, created_at FROM accounts WHERE id = $1`, id,
	), "postgres: get account")
}

func (s *PostgresStore) GetAccountByHandle(ctx context.Context, handle string) (*model.Account, error) {
	handle = strings.TrimPrefix(handle, "@")
	return s.scanAccountRow(s.pool.QueryRow(ctx,
		`SELECT id, handle, created_at FROM accounts WHERE lower(handle) = lower($1)`, handle,
	), "postgres: get account by handle")
}

func (s *PostgresStore) scanAccountRow(row pgx.Row, op string) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Handle, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, op)
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, handle, created_at FROM accounts ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Handle, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, eris.Wrap(rows.Err(), "postgres: list accounts iterate")
}

func (s *PostgresStore) LatestProfile(ctx context.Context, accountID string) (*model.AccountProfile, error) {
	var p model.AccountProfile
	var analysisJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, handle, followers, following, post_count, niche, analysis, analyzed_at, expires_at
		 FROM account_profiles WHERE account_id = $1
		 ORDER BY analyzed_at DESC LIMIT 1`,
		accountID,
	).Scan(&p.ID, &p.AccountID, &p.Handle, &p.Followers, &p.Following,
		&p.PostCount, &p.Niche, &analysisJSON, &p.AnalyzedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest profile")
	}
	if err := json.Unmarshal(analysisJSON, &p.Analysis); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile analysis")
	}
	return &p, nil
}

func (s *PostgresStore) PeerHistoryHandles(ctx context.Context, accountID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT peer_handle FROM peer_matches WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: peer history")
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "postgres: scan peer handle")
		}
		handles = append(handles, strings.ToLower(h))
	}
	return dedupeHandles(handles), eris.Wrap(rows.Err(), "postgres: peer history iterate")
}

const postgresPeerColumns = `id, account_id, batch_id, peer_handle, peer_followers, peer_profile,
	match_score, match_reason, growth_edge, peer_insights, example_posts, created_at, expires_at`

func (s *PostgresStore) CurrentPeerBatch(ctx context.Context, accountID string) ([]model.PeerMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresPeerColumns+` FROM peer_matches
		 WHERE batch_id = (
			SELECT batch_id FROM peer_matches WHERE account_id = $1
			ORDER BY created_at DESC LIMIT 1
		 )
		 ORDER BY match_score DESC`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: current peer batch")
	}
	defer rows.Close()
	return collectPgxPeers(rows)
}

func (s *PostgresStore) PeersForBatch(ctx context.Context, batchID string) ([]model.PeerMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresPeerColumns+` FROM peer_matches WHERE batch_id = $1 ORDER BY match_score DESC`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: peers for batch")
	}
	defer rows.Close()
	return collectPgxPeers(rows)
}

func collectPgxPeers(rows pgx.Rows) ([]model.PeerMatch, error) {
	var peers []model.PeerMatch
	for rows.Next() {
		var p model.PeerMatch
		var profileJSON []byte
		var insightsJSON, postsJSON []byte
		err := rows.Scan(&p.ID, &p.AccountID, &p.BatchID, &p.Handle, &p.Followers,
			&profileJSON, &p.MatchScore, &p.MatchReason, &p.GrowthEdge,
			&insightsJSON, &postsJSON, &p.CreatedAt, &p.ExpiresAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan peer")
		}
		if err := json.Unmarshal(profileJSON, &p.Analysis); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal peer profile")
		}
		if len(insightsJSON) > 0 {
			p.Insights = &model.PeerInsights{}
			if err := json.Unmarshal(insightsJSON, p.Insights); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal peer insights")
			}
		}
		if len(postsJSON) > 0 {
			if err := json.Unmarshal(postsJSON, &p.SamplePosts); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal peer posts")
			}
		}
		peers = append(peers, p)
	}
	return peers, eris.Wrap(rows.Err(), "postgres: iterate peers")
}

func (s *PostgresStore) SaveRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin run tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if rec.Profile != nil {
		analysisJSON, err := json.Marshal(rec.Profile.Analysis)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal profile analysis")
		}
		p := rec.Profile
		_, err = tx.Exec(ctx,
			`INSERT INTO account_profiles
			 (id, account_id, handle, followers, following, post_count, niche, analysis, analyzed_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.AccountID, p.Handle, p.Followers, p.Following, p.PostCount,
			p.Niche, analysisJSON, p.AnalyzedAt, p.ExpiresAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert profile")
		}
	}

	for i := range rec.Peers {
		peer := &rec.Peers[i]
		profileJSON, insightsJSON, postsJSON, err := marshalPeerBlobs(peer)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO peer_matches
			 (id, account_id, batch_id, peer_handle, peer_followers, peer_profile,
			  match_score, match_reason, growth_edge, peer_insights, example_posts, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			peer.ID, peer.AccountID, peer.BatchID, peer.Handle, peer.Followers, profileJSON,
			peer.MatchScore, peer.MatchReason, peer.GrowthEdge, insightsJSON, postsJSON,
			peer.CreatedAt, peer.ExpiresAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert peer %s", peer.Handle)
		}
	}

	insightsJSON, err := json.Marshal(rec.Analysis.Insights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insights")
	}
	a := rec.Analysis
	_, err = tx.Exec(ctx,
		`INSERT INTO analyses (id, account_id, profile_id, peer_batch_id, growth_score, insights, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.AccountID, a.ProfileID, a.PeerBatchID, a.GrowthScore, insightsJSON, a.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert analysis")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run tx")
}

const postgresAnalysisColumns = `id, account_id, profile_id, peer_batch_id, growth_score, insights, created_at`

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	return scanPgxAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+postgresAnalysisColumns+` FROM analyses WHERE id = $1`, id,
	), "postgres: get analysis")
}

func (s *PostgresStore) LatestAnalysis(ctx context.Context, accountID string) (*model.AnalysisRecord, error) {
	return scanPgxAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+postgresAnalysisColumns+` FROM analyses WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT 1`, accountID,
	), "postgres: latest analysis")
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, accountID string, limit int) ([]model.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresAnalysisColumns+` FROM analyses WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanPgxAnalysis(rows, "postgres: scan analysis")
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func scanPgxAnalysis(row pgx.Row, op string) (*model.AnalysisRecord, error) {
	var rec model.AnalysisRecord
	var insightsJSON []byte
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.ProfileID, &rec.PeerBatchID,
		&rec.GrowthScore, &insightsJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, op)
	}
	if err := json.Unmarshal(insightsJSON, &rec.Insights); err != nil {
		return nil, eris.Wrap(err, op+": unmarshal insights")
	}
	return &rec, nil
}
