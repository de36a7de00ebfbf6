// Package xapi wraps the X (Twitter) v2 API for user metric and timeline
// lookups. Unknown handles and empty timelines come back as nil/empty rather
// than errors; only transport-level failures are surfaced.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.twitter.com/2"

// Client defines the social-data operations used by the analysis engine.
type Client interface {
	// GetUserByHandle returns profile metrics for a handle, or (nil, nil)
	// when the handle does not exist or is suspended.
	GetUserByHandle(ctx context.Context, handle string) (*User, error)
	// GetUserTweets returns up to maxResults recent original posts for a
	// handle. Unknown handles and empty timelines return an empty slice.
	GetUserTweets(ctx context.Context, handle string, maxResults int) ([]Tweet, error)
}

// User is the profile payload for one account.
type User struct {
	ID            string        `json:"id"`
	Username      string        `json:"username"`
	Name          string        `json:"name"`
	PublicMetrics PublicMetrics `json:"public_metrics"`
}

// PublicMetrics holds the numeric account counters.
type PublicMetrics struct {
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	TweetCount     int `json:"tweet_count"`
}

// Tweet is a single post with engagement counters.
type Tweet struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	CreatedAt     time.Time    `json:"created_at"`
	PublicMetrics TweetMetrics `json:"public_metrics"`
}

// TweetMetrics holds per-post engagement counters.
type TweetMetrics struct {
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	ImpressionCount int `json:"impression_count"`
}

// Error is returned for transport failures and unexpected API responses.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("xapi: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("xapi: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request throttle (1 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	bearerToken string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
}

// NewClient creates an X API v2 client authenticated with a bearer token.
// Calls are throttled client-side; the free tier is aggressively rate-limited.
func NewClient(bearerToken string, opts ...Option) Client {
	c := &httpClient{
		bearerToken: bearerToken,
		baseURL:     defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// get performs an authenticated GET and returns the body for 2xx, (nil, nil)
// for 404, and an *Error otherwise.
func (c *httpClient) get(ctx context.Context, op, path string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, &Error{Op: op, Err: eris.Wrap(err, "rate limit")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &Error{Op: op, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Err: eris.Wrap(err, "send request")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Err: eris.Wrap(err, "read response")}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Err: eris.Errorf("unexpected status: %s", string(body))}
	}
	return body, nil
}

func (c *httpClient) GetUserByHandle(ctx context.Context, handle string) (*User, error) {
	path := "/users/by/username/" + url.PathEscape(handle) + "?user.fields=public_metrics"
	body, err := c.get(ctx, "get user "+handle, path)
	if err != nil || body == nil {
		return nil, err
	}

	var envelope struct {
		Data   *User `json:"data"`
		Errors []struct {
			Title string `json:"title"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Op: "get user " + handle, Err: eris.Wrap(err, "unmarshal response")}
	}
	// The v2 API reports unknown/suspended users as a 200 with an errors
	// array and no data object.
	if envelope.Data == nil {
		return nil, nil
	}
	return envelope.Data, nil
}

func (c *httpClient) GetUserTweets(ctx context.Context, handle string, maxResults int) ([]Tweet, error) {
	user, err := c.GetUserByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if maxResults <= 0 {
		maxResults = 10
	}
	// The timeline endpoint requires 5 <= max_results <= 100.
	clamped := min(max(maxResults, 5), 100)

	path := "/users/" + url.PathEscape(user.ID) + "/tweets" +
		"?max_results=" + strconv.Itoa(clamped) +
		"&exclude=retweets,replies" +
		"&tweet.fields=public_metrics,created_at"
	body, err := c.get(ctx, "get tweets "+handle, path)
	if err != nil || body == nil {
		return nil, err
	}

	var envelope struct {
		Data []Tweet `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Op: "get tweets " + handle, Err: eris.Wrap(err, "unmarshal response")}
	}

	tweets := envelope.Data
	if len(tweets) > maxResults {
		tweets = tweets[:maxResults]
	}
	return tweets, nil
}
