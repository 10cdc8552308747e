package store

import (
	"context"
	"time"

	"github.com/bakkerme/feedcache/internal/feed"
)

// ItemRecord is a stored feed item.
type ItemRecord struct {
	Title       string
	URI         string
	Description string
	PublishedAt time.Time
}

// FeedRecord is a stored feed with its items, newest first.
type FeedRecord struct {
	ID            int64
	URI           string
	Title         string
	Description   string
	LastUpdatedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []ItemRecord
}

// Store persists feeds and items, deduplicated by URI.
//
// Save inserts the feed row only when its identity is new (refreshing the feed
// first) and then appends every item whose URI is not yet stored for that feed.
// Items are never updated or deleted by Save.
type Store interface {
	List(ctx context.Context) ([]FeedRecord, error)
	Save(ctx context.Context, f *feed.Feed) (*feed.Feed, error)
	Remove(ctx context.Context, f *feed.Feed) error
	Close() error
}

// State converts a record into the state used to hydrate a feed.Feed.
// Items that fail validation are skipped.
func (r FeedRecord) State() feed.State {
	items := make([]feed.Item, 0, len(r.Items))
	for _, rec := range r.Items {
		item, err := feed.NewItem(rec.Title, rec.URI, rec.Description, rec.PublishedAt)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return feed.State{
		URI:           r.URI,
		Title:         r.Title,
		Description:   r.Description,
		LastUpdatedAt: r.LastUpdatedAt,
		Items:         items,
	}
}

// ItemRecordOf converts a feed item into its stored shape.
func ItemRecordOf(item feed.Item) ItemRecord {
	return ItemRecord{
		Title:       item.Title(),
		URI:         item.URI(),
		Description: item.Description(""),
		PublishedAt: item.PublishedAt(),
	}
}
