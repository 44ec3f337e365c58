// Package publisher talks to the publishing gateway that posts content to
// the social platforms and reports engagement back.
package publisher

import (
	"context"
)

// Gateway states reported for a publish attempt.
const (
	StatePublished = "published"
	StatePending   = "pending"
	StateFailed    = "failed"
)

type Request struct {
	// IdempotencyKey makes a retried publish of the same post a no-op on the
	// gateway side.
	IdempotencyKey    string   `json:"idempotency_key"`
	Platform          string   `json:"platform"`
	PlatformAccountID string   `json:"platform_account_id"`
	AccessToken       string   `json:"access_token"`
	Content           string   `json:"content"`
	MediaURLs         []string `json:"media_urls,omitempty"`
	Hashtags          []string `json:"hashtags,omitempty"`
}

type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Metrics struct {
	Impressions int64 `json:"impressions"`
	Reach       int64 `json:"reach"`
	Likes       int64 `json:"likes"`
	Comments    int64 `json:"comments"`
	Shares      int64 `json:"shares"`
	Clicks      int64 `json:"clicks"`
}

// Lookup addresses a post that is already on the platform.
type Lookup struct {
	Platform       string
	PlatformPostID string
	AccessToken    string
}

type Client interface {
	Publish(ctx context.Context, req Request) (*Result, error)
	Status(ctx context.Context, l Lookup) (*Result, error)
	Metrics(ctx context.Context, l Lookup) (*Metrics, error)
}
