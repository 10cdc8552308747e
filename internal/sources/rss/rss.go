package rss

import (
	"context"
	"time"
)

// FetchOptions controls RSS fetch behavior.
type FetchOptions struct {
	// Timeout bounds a single fetch. Zero leaves the deadline to the caller's context.
	Timeout   time.Duration
	UserAgent string
	Limit     int
}

// Item represents a single RSS or Atom entry as it crosses the source boundary.
type Item struct {
	Title       string
	URI         string
	Description string
	PublishedAt time.Time
}

// Channel is the channel-level metadata of a feed plus its entries.
type Channel struct {
	Title         string
	Description   string
	LastUpdatedAt time.Time
	Items         []Item
}

// Fetcher fetches and parses RSS/Atom feeds.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, options FetchOptions) (*Channel, error)
}
