package impl

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bakkerme/feedcache/internal/retry"
	"github.com/bakkerme/feedcache/internal/sources/rss"
	"github.com/mmcdole/gofeed"
)

type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
	retry  retry.Config
}

// NewFetcher builds a gofeed-backed fetcher. attempts <= 1 disables retries;
// retrying is a host decision and is off unless configured.
func NewFetcher(timeout time.Duration, userAgent string, attempts int) *Fetcher {
	client := &http.Client{Timeout: timeout}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &Fetcher{
		client: client,
		parser: parser,
		retry:  retry.Config{Attempts: attempts, BaseDelay: 200 * time.Millisecond},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) (*rss.Channel, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	parser := f.parser
	if options.UserAgent != "" && options.UserAgent != parser.UserAgent {
		parser = gofeed.NewParser()
		parser.Client = f.client
		parser.UserAgent = options.UserAgent
	}

	var feed *gofeed.Feed
	err := retry.Do(ctx, f.retry, func() error {
		parsed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			return err
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	return toChannel(feed, options.Limit), nil
}

func toChannel(feed *gofeed.Feed, limit int) *rss.Channel {
	channel := &rss.Channel{
		Title:       strings.TrimSpace(feed.Title),
		Description: strings.TrimSpace(feed.Description),
	}
	if feed.UpdatedParsed != nil {
		channel.LastUpdatedAt = rss.NormalizeTime(*feed.UpdatedParsed)
	} else if feed.PublishedParsed != nil {
		channel.LastUpdatedAt = rss.NormalizeTime(*feed.PublishedParsed)
	}

	if limit <= 0 {
		limit = len(feed.Items)
	}
	channel.Items = make([]rss.Item, 0, limit)
	for _, entry := range feed.Items {
		if len(channel.Items) >= limit {
			break
		}
		if entry == nil {
			continue
		}
		uri := strings.TrimSpace(entry.Link)
		if uri == "" {
			uri = strings.TrimSpace(entry.GUID)
		}
		item := rss.Item{
			Title:       strings.TrimSpace(entry.Title),
			URI:         uri,
			Description: entry.Description,
		}
		if item.Description == "" {
			item.Description = entry.Content
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = rss.NormalizeTime(*entry.PublishedParsed)
		} else if entry.UpdatedParsed != nil {
			item.PublishedAt = rss.NormalizeTime(*entry.UpdatedParsed)
		}
		channel.Items = append(channel.Items, item)
	}
	return channel
}
