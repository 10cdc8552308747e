package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/bakkerme/feedcache/internal/sources/rss"
)

// Item is one entry of a feed. It is a value: copies never share state.
type Item struct {
	title       string
	uri         string
	description string
	publishedAt time.Time
}

// NewItem builds an item; uri is the item's natural key within its feed.
func NewItem(title, uri, description string, publishedAt time.Time) (Item, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Item{}, fmt.Errorf("%w: item uri is required", ErrInvalidIdentity)
	}
	return Item{
		title:       title,
		uri:         uri,
		description: description,
		publishedAt: rss.NormalizeTime(publishedAt),
	}, nil
}

func (i Item) Title() string { return i.title }

func (i Item) URI() string { return i.uri }

// Description returns def when the item has no description.
func (i Item) Description(def string) string {
	if i.description == "" {
		return def
	}
	return i.description
}

func (i Item) PublishedAt() time.Time { return i.publishedAt }

// Published formats the publish time with layout, or rss.TimestampLayout when layout is empty.
// An unset publish time formats as "".
func (i Item) Published(layout string) string {
	if i.publishedAt.IsZero() {
		return ""
	}
	if layout == "" {
		return rss.FormatTimestamp(i.publishedAt)
	}
	return i.publishedAt.Format(layout)
}
