package feed

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/bakkerme/feedcache/internal/core"
	"github.com/bakkerme/feedcache/internal/sources/rss"
)

// Feed is one remote RSS source plus its cached metadata and items.
// The URI is the only identity used for deduplication and lookup.
type Feed struct {
	uri           string
	title         string
	description   string
	lastUpdatedAt time.Time
	items         []Item

	source  rss.Fetcher
	options rss.FetchOptions
}

// State is the persisted shape of a feed used to hydrate a Feed.
type State struct {
	URI           string
	Title         string
	Description   string
	LastUpdatedAt time.Time
	Items         []Item
}

type Option func(*Feed)

// WithFetchOptions sets the options passed to the source on Refresh (timeout, user agent, limit).
func WithFetchOptions(options rss.FetchOptions) Option {
	return func(f *Feed) {
		f.options = options
	}
}

// New returns a transient feed that has not been fetched or persisted yet.
func New(uri string, source rss.Fetcher, opts ...Option) (*Feed, error) {
	return Hydrate(State{URI: uri}, source, opts...)
}

// Hydrate rebuilds a feed from stored state. Items keep the order they are given in.
func Hydrate(state State, source rss.Fetcher, opts ...Option) (*Feed, error) {
	uri := strings.TrimSpace(state.URI)
	if uri == "" {
		return nil, fmt.Errorf("%w: feed uri is required", ErrInvalidIdentity)
	}
	f := &Feed{
		uri:           uri,
		title:         state.Title,
		description:   state.Description,
		lastUpdatedAt: rss.NormalizeTime(state.LastUpdatedAt),
		items:         append([]Item(nil), state.Items...),
		source:        source,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Identity is the feed URI.
func (f *Feed) Identity() string { return f.uri }

func (f *Feed) Title() string { return f.title }

func (f *Feed) Description() string { return f.description }

func (f *Feed) LastUpdatedAt() time.Time { return f.lastUpdatedAt }

// Refresh fetches the feed from its source and replaces metadata and items.
// On failure the feed is left untouched and the error matches ErrSourceUnavailable.
func (f *Feed) Refresh(ctx context.Context) error {
	if f.source == nil {
		return fmt.Errorf("%w: %s has no source", ErrSourceUnavailable, f.uri)
	}
	channel, err := f.source.Fetch(ctx, f.uri, f.options)
	if err != nil {
		return fmt.Errorf("%w: refresh %s: %w", ErrSourceUnavailable, f.uri, err)
	}
	if channel == nil {
		return fmt.Errorf("%w: refresh %s: empty response", ErrSourceUnavailable, f.uri)
	}

	items := make([]Item, 0, len(channel.Items))
	for _, raw := range channel.Items {
		item, err := NewItem(strings.TrimSpace(raw.Title), raw.URI, rss.StripMarkup(raw.Description), raw.PublishedAt)
		if err != nil {
			core.LoggerFromContext(ctx).Debug("skipping feed item without uri", "feed_uri", f.uri, "title", raw.Title)
			continue
		}
		items = append(items, item)
	}

	f.title = strings.TrimSpace(channel.Title)
	f.description = strings.TrimSpace(channel.Description)
	f.lastUpdatedAt = rss.NormalizeTime(channel.LastUpdatedAt)
	f.items = items
	return nil
}

// Clone returns an independent copy sharing only the source.
func (f *Feed) Clone() *Feed {
	out := *f
	out.items = append([]Item(nil), f.items...)
	return &out
}

func (f *Feed) Len() int { return len(f.items) }

// ItemAt returns the item at position i.
func (f *Feed) ItemAt(i int) (Item, bool) {
	if i < 0 || i >= len(f.items) {
		return Item{}, false
	}
	return f.items[i], true
}

// Items yields index/item pairs in feed order. The sequence can be ranged over repeatedly.
func (f *Feed) Items() iter.Seq2[int, Item] {
	snapshot := f.items
	return func(yield func(int, Item) bool) {
		for i, item := range snapshot {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Cursor returns a caller-owned cursor over the current items.
func (f *Feed) Cursor() *core.Cursor[Item] {
	return core.NewCursor(f.items)
}
