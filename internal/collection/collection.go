package collection

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/feedcache/internal/core"
	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/sources/rss"
	"github.com/bakkerme/feedcache/internal/store"
)

const tracerName = "feedcache/collection"

// Collection is a read-through cache of the feeds held by a store.
//
// The cache is filled on first read and rebuilt after every mutation, so between
// calls it always mirrors the store. One mutex serializes cache and store access.
type Collection struct {
	mu        sync.Mutex
	store     store.Store
	source    rss.Fetcher
	options   rss.FetchOptions
	logger    *slog.Logger
	tracer    trace.Tracer
	feeds     []*feed.Feed
	populated bool
}

type Option func(*Collection)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFetchOptions sets the fetch options (timeout, user agent) given to hydrated feeds.
func WithFetchOptions(options rss.FetchOptions) Option {
	return func(c *Collection) {
		c.options = options
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Collection) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// New builds a collection over st. source is attached to every feed hydrated from the store.
func New(st store.Store, source rss.Fetcher, opts ...Option) (*Collection, error) {
	if st == nil {
		return nil, fmt.Errorf("feed store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("feed source is required")
	}
	c := &Collection{
		store:  st,
		source: source,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFeed builds a transient feed wired to the collection's source and fetch options.
func (c *Collection) NewFeed(uri string) (*feed.Feed, error) {
	return feed.New(uri, c.source, feed.WithFetchOptions(c.options))
}

// Feeds fills the cache from the store if it is empty. It is a no-op once populated.
func (c *Collection) Feeds(ctx context.Context) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.populate(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Add saves f and rebuilds the cache from the store. The cache is rebuilt even when the save fails.
func (c *Collection) Add(ctx context.Context, f *feed.Feed) (*Collection, error) {
	ctx, span := c.startSpan(ctx, "collection.add")
	defer span.End()
	if f != nil {
		span.SetAttributes(attribute.String("feed.uri", f.Identity()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	saveErr := c.save(ctx, f)
	refreshErr := c.refreshCache(ctx)
	err := errors.Join(saveErr, refreshErr)
	endSpan(span, err)
	return c, err
}

// AddMany adds feeds in order. A failing feed does not stop the rest; every failure
// is reported in the returned *BatchError.
func (c *Collection) AddMany(ctx context.Context, feeds []*feed.Feed) (*Collection, error) {
	ctx, span := c.startSpan(ctx, "collection.add_many")
	defer span.End()
	span.SetAttributes(attribute.Int("feeds.count", len(feeds)))

	c.mu.Lock()
	defer c.mu.Unlock()

	batch := &BatchError{Op: "add many"}
	for _, f := range feeds {
		if err := c.save(ctx, f); err != nil {
			batch.add(identityOf(f), err)
		}
		if err := c.refreshCache(ctx); err != nil {
			batch.add(identityOf(f), err)
		}
	}
	err := errors.Join(batch.orNil(), c.refreshCache(ctx))
	endSpan(span, err)
	return c, err
}

// Update re-saves every cached feed so newly published items are appended.
// Failures are collected per feed; the cache is rebuilt at the end.
func (c *Collection) Update(ctx context.Context) (*Collection, error) {
	ctx = core.WithRunID(ctx, core.NewRunID())
	ctx, span := c.startSpan(ctx, "collection.update")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.populate(ctx); err != nil {
		endSpan(span, err)
		return c, err
	}

	feeds := append([]*feed.Feed(nil), c.feeds...)
	span.SetAttributes(attribute.Int("feeds.count", len(feeds)))
	c.log(ctx).Info("updating feeds", "feeds", len(feeds))

	batch := &BatchError{Op: "update"}
	for _, f := range feeds {
		if err := c.save(ctx, f); err != nil {
			batch.add(f.Identity(), err)
		}
	}
	err := errors.Join(batch.orNil(), c.refreshCache(ctx))
	endSpan(span, err)
	return c, err
}

// Remove deletes f from the store and rebuilds the cache.
func (c *Collection) Remove(ctx context.Context, f *feed.Feed) error {
	ctx, span := c.startSpan(ctx, "collection.remove")
	defer span.End()

	if f == nil {
		err := fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
		endSpan(span, err)
		return err
	}
	span.SetAttributes(attribute.String("feed.uri", f.Identity()))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Remove(ctx, f); err != nil {
		c.log(ctx).Error("feed remove failed", "feed_uri", f.Identity(), "error", err)
		endSpan(span, err)
		return err
	}
	c.log(ctx).Info("feed removed", "feed_uri", f.Identity())
	err := c.refreshCache(ctx)
	endSpan(span, err)
	return err
}

// Lookup returns the cached feed with the given identity.
func (c *Collection) Lookup(uri string) (*feed.Feed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.feeds {
		if f.Identity() == uri {
			return f, true
		}
	}
	return nil, false
}

func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.feeds)
}

// At returns the cached feed at position i.
func (c *Collection) At(i int) (*feed.Feed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.feeds) {
		return nil, false
	}
	return c.feeds[i], true
}

// All yields the cached feeds in store order. Each range works on a fresh snapshot.
func (c *Collection) All() iter.Seq2[int, *feed.Feed] {
	return func(yield func(int, *feed.Feed) bool) {
		for i, f := range c.snapshot() {
			if !yield(i, f) {
				return
			}
		}
	}
}

// Cursor returns a caller-owned cursor over the cached feeds.
func (c *Collection) Cursor() *core.Cursor[*feed.Feed] {
	return core.NewCursor(c.snapshot())
}

// Close releases the store.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds = nil
	c.populated = false
	return c.store.Close()
}

func (c *Collection) snapshot() []*feed.Feed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*feed.Feed(nil), c.feeds...)
}

func (c *Collection) save(ctx context.Context, f *feed.Feed) error {
	if f == nil {
		return fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
	}
	if _, err := c.store.Save(core.WithLogger(ctx, c.logger), f); err != nil {
		c.log(ctx).Error("feed save failed", "feed_uri", f.Identity(), "error", err)
		return err
	}
	return nil
}

// populate must be called with mu held.
func (c *Collection) populate(ctx context.Context) error {
	if c.populated {
		return nil
	}
	records, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list feeds: %w", err)
	}
	feeds := make([]*feed.Feed, 0, len(records))
	for _, rec := range records {
		f, err := feed.Hydrate(rec.State(), c.source, feed.WithFetchOptions(c.options))
		if err != nil {
			c.log(ctx).Warn("skipping stored feed", "feed_id", rec.ID, "error", err)
			continue
		}
		feeds = append(feeds, f)
	}
	c.feeds = feeds
	c.populated = true
	return nil
}

// refreshCache drops the cache and reloads it; must be called with mu held.
func (c *Collection) refreshCache(ctx context.Context) error {
	c.feeds = nil
	c.populated = false
	return c.populate(ctx)
}

func (c *Collection) log(ctx context.Context) *slog.Logger {
	logger := c.logger
	if runID := core.RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

func (c *Collection) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func identityOf(f *feed.Feed) string {
	if f == nil {
		return ""
	}
	return f.Identity()
}
