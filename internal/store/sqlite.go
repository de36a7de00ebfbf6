package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/levelx/growth-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per-connection; pin the pool to one so they stick. This
	// also sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	handle     TEXT NOT NULL UNIQUE COLLATE NOCASE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS account_profiles (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id),
	handle      TEXT NOT NULL,
	followers   INTEGER NOT NULL DEFAULT 0,
	following   INTEGER NOT NULL DEFAULT 0,
	post_count  INTEGER NOT NULL DEFAULT 0,
	niche       TEXT NOT NULL DEFAULT '',
	analysis    TEXT NOT NULL,
	analyzed_at DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS peer_matches (
	id             TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL REFERENCES accounts(id),
	batch_id       TEXT NOT NULL,
	peer_handle    TEXT NOT NULL,
	peer_followers INTEGER NOT NULL DEFAULT 0,
	peer_profile   TEXT NOT NULL,
	match_score    REAL NOT NULL DEFAULT 0,
	match_reason   TEXT NOT NULL DEFAULT '',
	growth_edge    TEXT NOT NULL DEFAULT '',
	peer_insights  TEXT,
	example_posts  TEXT,
	created_at     DATETIME NOT NULL,
	expires_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id            TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES accounts(id),
	profile_id    TEXT NOT NULL,
	peer_batch_id TEXT NOT NULL,
	growth_score  REAL NOT NULL DEFAULT 0,
	insights      TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_account ON account_profiles(account_id, analyzed_at DESC);
CREATE INDEX IF NOT EXISTS idx_peer_matches_account ON peer_matches(account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_peer_matches_batch ON peer_matches(batch_id);
CREATE INDEX IF NOT EXISTS idx_analyses_account ON analyses(account_id, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, handle string) (*model.Account, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	handle = strings.TrimPrefix(handle, "@")

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, handle, created_at) VALUES (?, ?, ?)`,
		id, handle, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert account %s", handle)
	}
	return &model.Account{ID: id, Handle: handle, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, handle, created_at FROM accounts WHERE id = ?`, id,
	), "sqlite: get account")
}

func (s *SQLiteStore) GetAccountByHandle(ctx context.Context, handle string) (*model.Account, error) {
	handle = strings.TrimPrefix(handle, "@")
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, handle, created_at FROM accounts WHERE handle = ? COLLATE NOCASE`, handle,
	), "sqlite: get account by handle")
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handle, created_at FROM accounts ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Handle, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, eris.Wrap(rows.Err(), "sqlite: list accounts iterate")
}

func (s *SQLiteStore) LatestProfile(ctx context.Context, accountID string) (*model.AccountProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, handle, followers, following, post_count, niche, analysis, analyzed_at, expires_at
		 FROM account_profiles WHERE account_id = ?
		 ORDER BY analyzed_at DESC LIMIT 1`,
		accountID,
	)

	var p model.AccountProfile
	var analysisJSON string
	err := row.Scan(&p.ID, &p.AccountID, &p.Handle, &p.Followers, &p.Following,
		&p.PostCount, &p.Niche, &analysisJSON, &p.AnalyzedAt, &p.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest profile")
	}
	if err := json.Unmarshal([]byte(analysisJSON), &p.Analysis); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile analysis")
	}
	return &p, nil
}

func (s *SQLiteStore) PeerHistoryHandles(ctx context.Context, accountID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT peer_handle FROM peer_matches WHERE account_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: peer history")
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan peer handle")
		}
		handles = append(handles, strings.ToLower(h))
	}
	return dedupeHandles(handles), eris.Wrap(rows.Err(), "sqlite: peer history iterate")
}

const sqlitePeerColumns = `id, account_id, batch_id, peer_handle, peer_followers, peer_profile,
	match_score, match_reason, growth_edge, peer_insights, example_posts, created_at, expires_at`

func (s *SQLiteStore) CurrentPeerBatch(ctx context.Context, accountID string) ([]model.PeerMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePeerColumns+` FROM peer_matches
		 WHERE batch_id = (
			SELECT batch_id FROM peer_matches WHERE account_id = ?
			ORDER BY created_at DESC LIMIT 1
		 )
		 ORDER BY match_score DESC`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: current peer batch")
	}
	defer rows.Close()
	return collectPeers(rows, "sqlite")
}

func (s *SQLiteStore) PeersForBatch(ctx context.Context, batchID string) ([]model.PeerMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePeerColumns+` FROM peer_matches WHERE batch_id = ? ORDER BY match_score DESC`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: peers for batch")
	}
	defer rows.Close()
	return collectPeers(rows, "sqlite")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin run tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if rec.Profile != nil {
		analysisJSON, err := json.Marshal(rec.Profile.Analysis)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal profile analysis")
		}
		p := rec.Profile
		_, err = tx.ExecContext(ctx,
			`INSERT INTO account_profiles
			 (id, account_id, handle, followers, following, post_count, niche, analysis, analyzed_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.AccountID, p.Handle, p.Followers, p.Following, p.PostCount,
			p.Niche, string(analysisJSON), p.AnalyzedAt, p.ExpiresAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert profile")
		}
	}

	for i := range rec.Peers {
		peer := &rec.Peers[i]
		profileJSON, insightsJSON, postsJSON, err := marshalPeerBlobs(peer)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO peer_matches
			 (id, account_id, batch_id, peer_handle, peer_followers, peer_profile,
			  match_score, match_reason, growth_edge, peer_insights, example_posts, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			peer.ID, peer.AccountID, peer.BatchID, peer.Handle, peer.Followers, profileJSON,
			peer.MatchScore, peer.MatchReason, peer.GrowthEdge, insightsJSON, postsJSON,
			peer.CreatedAt, peer.ExpiresAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert peer %s", peer.Handle)
		}
	}

	insightsJSON, err := json.Marshal(rec.Analysis.Insights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insights")
	}
	a := rec.Analysis
	_, err = tx.ExecContext(ctx,
		`INSERT INTO analyses (id, account_id, profile_id, peer_batch_id, growth_score, insights, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AccountID, a.ProfileID, a.PeerBatchID, a.GrowthScore, string(insightsJSON), a.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert analysis")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run tx")
}

const sqliteAnalysisColumns = `id, account_id, profile_id, peer_batch_id, growth_score, insights, created_at`

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	return scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAnalysisColumns+` FROM analyses WHERE id = ?`, id,
	), "sqlite: get analysis")
}

func (s *SQLiteStore) LatestAnalysis(ctx context.Context, accountID string) (*model.AnalysisRecord, error) {
	return scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAnalysisColumns+` FROM analyses WHERE account_id = ?
		 ORDER BY created_at DESC LIMIT 1`, accountID,
	), "sqlite: latest analysis")
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, accountID string, limit int) ([]model.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAnalysisColumns+` FROM analyses WHERE account_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows, "sqlite: scan analysis")
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

// --- shared scan helpers (used by both drivers) ---

type scannable interface {
	Scan(dest ...any) error
}

func scanAccount(row scannable, op string) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Handle, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	return &a, nil
}

func scanAnalysis(row scannable, op string) (*model.AnalysisRecord, error) {
	var rec model.AnalysisRecord
	var insightsJSON string
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.ProfileID, &rec.PeerBatchID,
		&rec.GrowthScore, &insightsJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	if err := json.Unmarshal([]byte(insightsJSON), &rec.Insights); err != nil {
		return nil, eris.Wrap(err, op+": unmarshal insights")
	}
	return &rec, nil
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectPeers(rows rowIterator, driver string) ([]model.PeerMatch, error) {
	var peers []model.PeerMatch
	for rows.Next() {
		var p model.PeerMatch
		var profileJSON string
		var insightsJSON, postsJSON sql.NullString
		err := rows.Scan(&p.ID, &p.AccountID, &p.BatchID, &p.Handle, &p.Followers,
			&profileJSON, &p.MatchScore, &p.MatchReason, &p.GrowthEdge,
			&insightsJSON, &postsJSON, &p.CreatedAt, &p.ExpiresAt)
		if err != nil {
			return nil, eris.Wrap(err, driver+": scan peer")
		}
		if err := json.Unmarshal([]byte(profileJSON), &p.Analysis); err != nil {
			return nil, eris.Wrap(err, driver+": unmarshal peer profile")
		}
		if insightsJSON.Valid && insightsJSON.String != "" {
			p.Insights = &model.PeerInsights{}
			if err := json.Unmarshal([]byte(insightsJSON.String), p.Insights); err != nil {
				return nil, eris.Wrap(err, driver+": unmarshal peer insights")
			}
		}
		if postsJSON.Valid && postsJSON.String != "" {
			if err := json.Unmarshal([]byte(postsJSON.String), &p.SamplePosts); err != nil {
				return nil, eris.Wrap(err, driver+": unmarshal peer posts")
			}
		}
		peers = append(peers, p)
	}
	return peers, eris.Wrap(rows.Err(), driver+": iterate peers")
}

// marshalPeerBlobs serializes the JSON columns of one peer row. Nil insights
// and posts become NULL so readers can distinguish "never augmented".
func marshalPeerBlobs(p *model.PeerMatch) (profile string, insights, posts *string, err error) {
	profileJSON, err := json.Marshal(p.Analysis)
	if err != nil {
		return "", nil, nil, eris.Wrapf(err, "marshal peer profile %s", p.Handle)
	}
	if p.Insights != nil {
		b, err := json.Marshal(p.Insights)
		if err != nil {
			return "", nil, nil, eris.Wrapf(err, "marshal peer insights %s", p.Handle)
		}
		s := string(b)
		insights = &s
	}
	if len(p.SamplePosts) > 0 {
		b, err := json.Marshal(p.SamplePosts)
		if err != nil {
			return "", nil, nil, eris.Wrapf(err, "marshal peer posts %s", p.Handle)
		}
		s := string(b)
		posts = &s
	}
	return string(profileJSON), insights, posts, nil
}

func dedupeHandles(handles []string) []string {
	seen := make(map[string]struct{}, len(handles))
	out := handles[:0]
	for _, h := range handles {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
