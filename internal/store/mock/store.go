package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/store"
)

// Store is an in-memory store.Store with injectable failures.
type Store struct {
	// SaveErrByFeed fails Save for a feed URI before anything is written.
	SaveErrByFeed map[string]error
	RemoveErr     error
	ListErr       error

	mu      sync.Mutex
	records []store.FeedRecord
	nextID  int64
	saves   []string
	lists   int
	closed  bool
}

var _ store.Store = (*Store)(nil)

func (s *Store) List(ctx context.Context) ([]store.FeedRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]store.FeedRecord, 0, len(s.records))
	for _, rec := range s.records {
		rec.Items = append([]store.ItemRecord(nil), rec.Items...)
		sort.SliceStable(rec.Items, func(i, j int) bool {
			return rec.Items[i].PublishedAt.After(rec.Items[j].PublishedAt)
		})
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, f *feed.Feed) (*feed.Feed, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
	}
	s.mu.Lock()
	s.saves = append(s.saves, f.Identity())
	injected := s.SaveErrByFeed[f.Identity()]
	idx := s.indexOf(f.Identity())
	s.mu.Unlock()

	if injected != nil {
		return f, injected
	}
	if idx < 0 {
		if err := f.Refresh(ctx); err != nil {
			return f, err
		}
		s.mu.Lock()
		s.nextID++
		now := time.Now().UTC()
		s.records = append(s.records, store.FeedRecord{
			ID:            s.nextID,
			URI:           f.Identity(),
			Title:         f.Title(),
			Description:   f.Description(),
			LastUpdatedAt: f.LastUpdatedAt(),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		s.mu.Unlock()
	}

	latest := f.Clone()
	if err := latest.Refresh(ctx); err != nil {
		return f, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx = s.indexOf(f.Identity())
	if idx < 0 {
		return f, fmt.Errorf("%w: feed %s vanished during save", feed.ErrPersistence, f.Identity())
	}
	rec := &s.records[idx]
	known := make(map[string]bool, len(rec.Items))
	for _, it := range rec.Items {
		known[it.URI] = true
	}
	for _, item := range latest.Items() {
		if known[item.URI()] {
			continue
		}
		known[item.URI()] = true
		rec.Items = append(rec.Items, store.ItemRecordOf(item))
	}
	return f, nil
}

func (s *Store) Remove(ctx context.Context, f *feed.Feed) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	if idx := s.indexOf(f.Identity()); idx >= 0 {
		s.records = append(s.records[:idx], s.records[idx+1:]...)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Saves lists the feed URIs passed to Save, in call order.
func (s *Store) Saves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

// Lists counts calls to List.
func (s *Store) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// ItemCount is the number of stored items for uri.
func (s *Store) ItemCount(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(uri); idx >= 0 {
		return len(s.records[idx].Items)
	}
	return 0
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) indexOf(uri string) int {
	for i, rec := range s.records {
		if rec.URI == uri {
			return i
		}
	}
	return -1
}
