package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/bakkerme/feedcache/internal/sources/rss"
)

type Fetcher struct {
	ChannelsByFeed map[string]*rss.Channel
	ErrByFeed      map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) (*rss.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[feedURL]++
	err := f.ErrByFeed[feedURL]
	channel, ok := f.ChannelsByFeed[feedURL]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok || channel == nil {
		return nil, fmt.Errorf("no channel registered for %s", feedURL)
	}

	out := *channel
	out.Items = append([]rss.Item(nil), channel.Items...)
	if options.Limit > 0 && len(out.Items) > options.Limit {
		out.Items = out.Items[:options.Limit]
	}
	return &out, nil
}

// Calls reports how many times feedURL was fetched.
func (f *Fetcher) Calls(feedURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[feedURL]
}

// SetChannel registers or replaces the channel served for feedURL.
func (f *Fetcher) SetChannel(feedURL string, channel *rss.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ChannelsByFeed == nil {
		f.ChannelsByFeed = map[string]*rss.Channel{}
	}
	f.ChannelsByFeed[feedURL] = channel
}
