package model

import "time"

// PeerMatch is a validated peer account surfaced for a subject. Rows are
// append-only: old matches are retained indefinitely as exclusion history,
// and only the most recent batch (same BatchID) is considered current.
type PeerMatch struct {
	ID         string             `json:"id"`
	AccountID  string             `json:"account_id"`
	BatchID    string             `json:"batch_id"`
	Handle     string             `json:"peer_handle"`
	Followers  int                `json:"peer_followers"`
	Analysis   StructuredAnalysis `json:"peer_profile"`
	MatchScore float64            `json:"match_score"`
	MatchReason string            `json:"match_reason"`
	GrowthEdge string             `json:"growth_edge"`
	Insights   *PeerInsights      `json:"peer_insights,omitempty"`
	SamplePosts []Post            `json:"example_posts,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// PeerInsights holds post-grounded tactical observations for one peer.
// A degraded value (numeric bullets only, empty lists) is produced when the
// peer's posts cannot be fetched; a nil Insights field on PeerMatch means
// augmentation failed entirely, which is non-fatal to the run.
type PeerInsights struct {
	Characteristics []string         `json:"unique_characteristics"`
	Differences     []PeerDifference `json:"what_they_do_differently"`
	Tactics         []PeerTactic     `json:"tactical_insights"`
}

// PeerDifference is one category-level comparison between subject and peer.
type PeerDifference struct {
	Category     string `json:"category"`
	UserApproach string `json:"user_approach"`
	PeerApproach string `json:"peer_approach"`
	Impact       string `json:"impact"`
	Example      string `json:"example"`
}

// PeerTactic is one replicable tactic observed in a peer's real posts.
type PeerTactic struct {
	Tactic         string `json:"tactic"`
	HowTheyDoIt    string `json:"how_they_do_it"`
	WhyItWorks     string `json:"why_it_works"`
	HowToCopy      string `json:"how_to_copy"`
	ExpectedResult string `json:"expected_result"`
}
