package store

import (
	"context"

	"github.com/levelx/growth-cli/internal/model"
)

// RunRecord bundles all writes produced by one analysis run. The whole record
// is persisted in a single transaction: a failed run leaves no partial rows.
type RunRecord struct {
	// Profile is the freshly built snapshot, or nil when a cached one was
	// reused (reuse writes nothing).
	Profile *model.AccountProfile
	// Peers is the newly validated batch, or nil when the current cached
	// batch was reused. An empty non-nil slice is a valid outcome (no
	// eligible peers found) and writes no peer rows.
	Peers []model.PeerMatch
	// Analysis is the immutable run result, always written.
	Analysis model.AnalysisRecord
}

// Store defines persistence for accounts, profile snapshots, peer-match
// history, and analysis results. Reads of cache-like entities return
// (nil, nil) on miss; expiry comparison is the caller's job.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, handle string) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// Profile snapshots (append-only; latest wins)
	LatestProfile(ctx context.Context, accountID string) (*model.AccountProfile, error)

	// Peer-match history (append-only; never deleted)
	PeerHistoryHandles(ctx context.Context, accountID string, limit int) ([]string, error)
	CurrentPeerBatch(ctx context.Context, accountID string) ([]model.PeerMatch, error)
	PeersForBatch(ctx context.Context, batchID string) ([]model.PeerMatch, error)

	// Runs
	SaveRun(ctx context.Context, rec RunRecord) error
	GetAnalysis(ctx context.Context, id string) (*model.AnalysisRecord, error)
	LatestAnalysis(ctx context.Context, accountID string) (*model.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, accountID string, limit int) ([]model.AnalysisRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
