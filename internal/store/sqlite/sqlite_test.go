package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/sources/rss"
	rssmock "github.com/bakkerme/feedcache/internal/sources/rss/mock"
)

const feedURL = "http://feed.example/rss"

var base = time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "feeds.db"))
	if err != nil {
		t.Fatalf("failed to init sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func channelWith(items ...rss.Item) *rss.Channel {
	return &rss.Channel{Title: "Example", Description: "desc", LastUpdatedAt: base, Items: items}
}

func item(n int, published time.Time) rss.Item {
	uri := "http://feed.example/" + string(rune('a'+n))
	return rss.Item{Title: "Item " + uri, URI: uri, Description: "<p>body</p>", PublishedAt: published}
}

func countRows(t *testing.T, st *Store, table string) int {
	t.Helper()
	var n int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSaveIsIdempotentOnIdentity(t *testing.T) {
	st := newTestStore(t)
	source := &rssmock.Fetcher{}
	source.SetChannel(feedURL, channelWith(item(0, base), item(1, base.Add(-time.Hour)), item(2, base.Add(time.Hour))))

	for i := 0; i < 3; i++ {
		f, err := feed.New(feedURL, source)
		if err != nil {
			t.Fatalf("new feed: %v", err)
		}
		if _, err := st.Save(context.Background(), f); err != nil {
			t.Fatalf("save #%d failed: %v", i, err)
		}
	}

	if got := countRows(t, st, feedTable); got != 1 {
		t.Fatalf("expected 1 feed row, got %d", got)
	}
	if got := countRows(t, st, itemTable); got != 3 {
		t.Fatalf("expected 3 item rows, got %d", got)
	}
}

func TestListOrdersItemsByPublishedDescending(t *testing.T) {
	st := newTestStore(t)
	source := &rssmock.Fetcher{}
	source.SetChannel(feedURL, channelWith(item(0, base), item(1, base.Add(-time.Hour)), item(2, base.Add(time.Hour))))

	f, _ := feed.New(feedURL, source)
	if _, err := st.Save(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	records, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 feed, got %d", len(records))
	}
	items := records[0].Items
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].PublishedAt.Before(items[i].PublishedAt) {
			t.Fatalf("items not sorted by published desc: %v then %v", items[i-1].PublishedAt, items[i].PublishedAt)
		}
	}
	if records[0].Title != "Example" || records[0].CreatedAt.IsZero() {
		t.Fatalf("expected feed metadata to be stored, got %+v", records[0])
	}
	if items[0].Description != "body" {
		t.Fatalf("expected sanitized description, got %q", items[0].Description)
	}
}

func TestSaveRoundTripsTimestamps(t *testing.T) {
	st := newTestStore(t)
	published := time.Date(2021, time.July, 14, 8, 9, 10, 0, time.UTC)
	source := &rssmock.Fetcher{}
	source.SetChannel("http://a", &rss.Channel{Items: []rss.Item{{Title: "T", URI: "http://a/1", PublishedAt: published}}})

	f, _ := feed.New("http://a", source)
	if _, err := st.Save(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	records, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	got := records[0].Items[0]
	if got.Title != "T" || got.URI != "http://a/1" || !got.PublishedAt.Equal(published) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !records[0].LastUpdatedAt.IsZero() {
		t.Fatalf("expected unset last updated to stay unset, got %v", records[0].LastUpdatedAt)
	}
}

func TestSaveAppendsOnlyNewItems(t *testing.T) {
	st := newTestStore(t)
	source := &rssmock.Fetcher{}
	source.SetChannel(feedURL, channelWith(item(0, base), item(1, base.Add(-time.Hour))))

	f, _ := feed.New(feedURL, source)
	if _, err := st.Save(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// The remote feed gains an item and rewrites an existing one.
	changed := item(0, base)
	changed.Title = "rewritten"
	source.SetChannel(feedURL, channelWith(item(3, base.Add(2*time.Hour)), changed, item(1, base.Add(-time.Hour))))
	if _, err := st.Save(context.Background(), f); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	if got := countRows(t, st, itemTable); got != 3 {
		t.Fatalf("expected exactly one new item row, got %d rows", got)
	}
	records, _ := st.List(context.Background())
	for _, it := range records[0].Items {
		if it.Title == "rewritten" {
			t.Fatalf("existing items must not be updated")
		}
	}
}

func TestSaveDoesNotMutateCallerFeed(t *testing.T) {
	st := newTestStore(t)
	source := &rssmock.Fetcher{}
	source.SetChannel(feedURL, channelWith(item(0, base)))

	f, _ := feed.New(feedURL, source)
	if _, err := st.Save(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	source.SetChannel(feedURL, channelWith(item(0, base), item(1, base)))
	if _, err := st.Save(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if f.Len() != 1 {
		t.Fatalf("item sync must not change the caller's feed, got %d items", f.Len())
	}
}

func TestItemDedupIsScopedPerFeed(t *testing.T) {
	st := newTestStore(t)
	shared := rss.Item{Title: "shared", URI: "http://shared/1", PublishedAt: base}
	source := &rssmock.Fetcher{}
	source.SetChannel("http://one", &rss.Channel{Items: []rss.Item{shared}})
	source.SetChannel("http://two", &rss.Channel{Items: []rss.Item{shared}})

	for _, uri := range []string{"http://one", "http://two"} {
		f, _ := feed.New(uri, source)
		if _, err := st.Save(context.Background(), f); err != nil {
			t.Fatalf("save %s failed: %v", uri, err)
		}
	}
	records, _ := st.List(context.Background())
	if len(records) != 2 || len(records[0].Items) != 1 || len(records[1].Items) != 1 {
		t.Fatalf("expected each feed to hold its own copy of the shared item: %+v", records)
	}
}

func TestSaveNewFeedSourceFailureInsertsNothing(t *testing.T) {
	st := newTestStore(t)
	source := &rssmock.Fetcher{ErrByFeed: map[string]error{feedURL: errors.New("dns failure")}}

	f, _ := feed.New(feedURL, source)
	_, err := st.Save(context.Background(), f)
	if !errors.Is(err, feed.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if got := countRows(t, st, feedTable); got != 0 {
		t.Fatalf("expected no feed row, got %d", got)
	}
}

func TestRemoveDeletesFeedAndItems(t *testing.T) {
	st := newTestStore(t)
	source := &rssmock.Fetcher{}
	source.SetChannel(feedURL, channelWith(item(0, base), item(1, base)))
	source.SetChannel("http://other", channelWith(item(5, base)))

	f, _ := feed.New(feedURL, source)
	other, _ := feed.New("http://other", source)
	for _, ff := range []*feed.Feed{f, other} {
		if _, err := st.Save(context.Background(), ff); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := st.Remove(context.Background(), f); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	records, _ := st.List(context.Background())
	if len(records) != 1 || records[0].URI != "http://other" {
		t.Fatalf("expected only the other feed to remain, got %+v", records)
	}
	if got := countRows(t, st, itemTable); got != 1 {
		t.Fatalf("expected removed feed items to be deleted, got %d rows", got)
	}
}

func TestExistsFailsClosedForUnknownSpace(t *testing.T) {
	st := newTestStore(t)
	ok, err := st.exists(context.Background(), st.db, identitySpace(42), "http://anything", 0)
	if err != nil || ok {
		t.Fatalf("expected unknown identity space to return false without error, got %v %v", ok, err)
	}
}

func TestMigrationsAreApplied(t *testing.T) {
	st := newTestStore(t)
	version, dirty, err := st.MigrationVersion()
	if err != nil {
		t.Fatalf("migration version: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("expected clean version 1, got %d (dirty=%v)", version, dirty)
	}

	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	first, err := New(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = first.Close()
	second, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen should not re-run migrations: %v", err)
	}
	_ = second.Close()
}
