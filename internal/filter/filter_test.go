package filter

import (
	"context"
	"testing"
	"time"

	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/sources/rss"
	rssmock "github.com/bakkerme/feedcache/internal/sources/rss/mock"
)

func refreshedFeed(t *testing.T) *feed.Feed {
	t.Helper()
	source := &rssmock.Fetcher{}
	source.SetChannel("http://go.example/rss", &rss.Channel{
		Title: "Go News",
		Items: []rss.Item{
			{Title: "Go 1.24 released", URI: "http://go.example/1", PublishedAt: time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC)},
			{Title: "Generics deep dive", URI: "http://go.example/2", PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	})
	f, err := feed.New("http://go.example/rss", source)
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return f
}

func TestFeedFilter(t *testing.T) {
	f := refreshedFeed(t)
	cases := []struct {
		rule string
		want bool
	}{
		{"", true},
		{`title contains "Go"`, true},
		{`items.count > 2`, false},
		{`items.count == 2 && uri startsWith "http://go.example"`, true},
		{`lastupdated.IsZero()`, true},
	}
	for _, tc := range cases {
		filter, err := CompileFeed(tc.rule)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.rule, err)
		}
		got, err := filter.MatchFeed(f)
		if err != nil {
			t.Fatalf("match %q: %v", tc.rule, err)
		}
		if got != tc.want {
			t.Fatalf("rule %q matched=%v, want %v", tc.rule, got, tc.want)
		}
	}
}

func TestItemFilter(t *testing.T) {
	f := refreshedFeed(t)
	filter, err := CompileItem(`title matches "^Go" && feed.title == "Go News"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var matched []string
	for _, item := range f.Items() {
		ok, err := filter.MatchItem(f, item)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		if ok {
			matched = append(matched, item.URI())
		}
	}
	if len(matched) != 1 || matched[0] != "http://go.example/1" {
		t.Fatalf("unexpected matches %v", matched)
	}
}

func TestCompileRejectsNonBoolAndUnknownFields(t *testing.T) {
	for _, rule := range []string{`title`, `position > 1`} {
		if _, err := CompileFeed(rule); err == nil {
			t.Fatalf("expected compile error for %q", rule)
		}
	}
}
