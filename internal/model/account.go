package model

import "time"

// Account is a registered subject account to be analyzed.
type Account struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// StructuredAnalysis is the completion-service-derived profile blob shared by
// subject profiles and peer matches.
type StructuredAnalysis struct {
	PrimaryNiche     string   `json:"primary_niche"`
	SecondaryTopics  []string `json:"secondary_topics"`
	ContentStyle     string   `json:"content_style"`
	PostsPerWeek     float64  `json:"posting_frequency_per_week"`
	AvgLikesPerPost  float64  `json:"average_likes_per_post"`
	AvgViewsPerPost  float64  `json:"average_views_per_post"`
	MonthlyGrowthPct float64  `json:"estimated_monthly_follower_growth_percent"`
	VisualRatio      string   `json:"visual_content_ratio"`
	KeyHashtags      []string `json:"key_hashtags"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses_for_growth"`
}

// AccountProfile is one profiling snapshot of a subject account. Profiles are
// superseded, never mutated: each rebuild inserts a new row with a fresh
// expiry and readers take the latest.
type AccountProfile struct {
	ID         string             `json:"id"`
	AccountID  string             `json:"account_id"`
	Handle     string             `json:"handle"`
	Followers  int                `json:"followers_count"`
	Following  int                `json:"following_count"`
	PostCount  int                `json:"post_count"`
	Niche      string             `json:"niche"`
	Analysis   StructuredAnalysis `json:"analysis"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// Expired reports whether the snapshot's TTL has lapsed at the given instant.
func (p *AccountProfile) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// Post is a single social post with engagement metrics.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Likes     int       `json:"like_count"`
	Retweets  int       `json:"retweet_count"`
	Replies   int       `json:"reply_count"`
	Views     int       `json:"view_count"`
	CreatedAt time.Time `json:"created_at"`
}
