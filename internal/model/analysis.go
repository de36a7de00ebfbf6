package model

import "time"

// GrowthInsights is the synthesized deliverable of a run: a growth score plus
// ranked, numeric, actionable insight objects compared against peer baselines.
type GrowthInsights struct {
	GrowthScore  float64   `json:"growth_score"`
	Explanation  string    `json:"growth_score_explanation"`
	Insights     []Insight `json:"insights"`
	QuickWins    []string  `json:"quick_wins"`
	PeerTactics  []string  `json:"peer_standout_tactics"`
}

// Insight is one actionable growth recommendation.
type Insight struct {
	Title          string             `json:"title"`
	Category       string             `json:"category"`
	Priority       string             `json:"priority"`
	CurrentState   string             `json:"current_state"`
	PeerState      string             `json:"peer_state"`
	GapImpact      string             `json:"gap_impact"`
	Action         string             `json:"action"`
	ExpectedResult string             `json:"expected_result"`
	Measurement    string             `json:"measurement"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
}

// AnalysisRecord is one persisted orchestration run, immutable once written.
type AnalysisRecord struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	ProfileID   string         `json:"profile_id"`
	PeerBatchID string         `json:"peer_batch_id"`
	GrowthScore float64        `json:"growth_score"`
	Insights    GrowthInsights `json:"insights"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AnalysisResult is the full in-memory outcome of a run, returned to callers.
type AnalysisResult struct {
	AnalysisID   string         `json:"analysis_id"`
	Profile      AccountProfile `json:"user_profile"`
	Peers        []PeerMatch    `json:"peer_profiles"`
	Insights     GrowthInsights `json:"insights"`
	ProfileCached bool          `json:"profile_cached"`
	PeersCached  bool           `json:"peers_cached"`
	CostUSD      float64        `json:"estimated_cost_usd"`
	CreatedAt    time.Time      `json:"created_at"`
}
