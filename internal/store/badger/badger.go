package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bakkerme/feedcache/internal/core"
	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/store"
)

const (
	feedPrefix  = "feed:"
	itemPrefix  = "item:"
	sequenceKey = "seq:feed"
)

type identitySpace int

const (
	spaceFeed identitySpace = iota + 1
	spaceItem
)

type feedValue struct {
	ID            int64     `json:"id"`
	URI           string    `json:"uri"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type itemValue struct {
	Title       string    `json:"title"`
	URI         string    `json:"uri"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
}

// Store keeps feeds and items in an embedded badger database.
type Store struct {
	db       *badger.DB
	sequence *badger.Sequence
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens the database directory at path. An empty path keeps everything in memory.
func New(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	opts.Logger = nil // Disable badger's default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), 16)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open feed id sequence: %w", err)
	}
	return &Store{
		db:       db,
		sequence: seq,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	relErr := s.sequence.Release()
	return errors.Join(relErr, s.db.Close())
}

func (s *Store) List(ctx context.Context) ([]store.FeedRecord, error) {
	_ = ctx
	var records []store.FeedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var feeds []feedValue
		if err := scanPrefix(txn, []byte(feedPrefix), func(val []byte) error {
			var fv feedValue
			if err := json.Unmarshal(val, &fv); err != nil {
				return err
			}
			feeds = append(feeds, fv)
			return nil
		}); err != nil {
			return err
		}
		sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })

		for _, fv := range feeds {
			rec := store.FeedRecord{
				ID:            fv.ID,
				URI:           fv.URI,
				Title:         fv.Title,
				Description:   fv.Description,
				LastUpdatedAt: fv.LastUpdatedAt,
				CreatedAt:     fv.CreatedAt,
				UpdatedAt:     fv.UpdatedAt,
			}
			if err := scanPrefix(txn, itemsPrefix(fv.URI), func(val []byte) error {
				var iv itemValue
				if err := json.Unmarshal(val, &iv); err != nil {
					return err
				}
				rec.Items = append(rec.Items, store.ItemRecord(iv))
				return nil
			}); err != nil {
				return err
			}
			sort.SliceStable(rec.Items, func(i, j int) bool {
				return rec.Items[i].PublishedAt.After(rec.Items[j].PublishedAt)
			})
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return records, nil
}

// Save inserts f when its identity is new and appends any items not yet stored for it.
func (s *Store) Save(ctx context.Context, f *feed.Feed) (*feed.Feed, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
	}
	logger := core.LoggerFromContext(ctx).With("feed_uri", f.Identity())

	known, err := s.exists(spaceFeed, f.Identity(), "")
	if err != nil {
		return f, fmt.Errorf("%w: lookup feed %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	if !known {
		if err := f.Refresh(ctx); err != nil {
			return f, err
		}
		if err := s.insertFeed(f); err != nil {
			return f, fmt.Errorf("%w: insert feed %s: %w", feed.ErrPersistence, f.Identity(), err)
		}
		logger.Info("feed stored", "title", f.Title())
	}

	latest := f.Clone()
	if err := latest.Refresh(ctx); err != nil {
		return f, err
	}
	inserted, err := s.saveItems(latest)
	if err != nil {
		return f, fmt.Errorf("%w: sync items for %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	logger.Debug("feed items synchronized", "items", latest.Len(), "inserted", inserted)
	return f, nil
}

// Remove deletes the feed key and every item key under it.
func (s *Store) Remove(ctx context.Context, f *feed.Feed) error {
	_ = ctx
	if f == nil {
		return fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		keys := [][]byte{feedKey(f.Identity())}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := itemsPrefix(f.Identity())
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	return nil
}

func (s *Store) insertFeed(f *feed.Feed) error {
	next, err := s.sequence.Next()
	if err != nil {
		return err
	}
	now := s.now()
	data, err := json.Marshal(feedValue{
		ID:            int64(next) + 1,
		URI:           f.Identity(),
		Title:         f.Title(),
		Description:   f.Description(),
		LastUpdatedAt: f.LastUpdatedAt(),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(feedKey(f.Identity()), data)
	})
}

func (s *Store) saveItems(f *feed.Feed) (int, error) {
	inserted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		inserted = 0
		for _, item := range f.Items() {
			key := itemKey(f.Identity(), item.URI())
			if _, err := txn.Get(key); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			data, err := json.Marshal(itemValue(store.ItemRecordOf(item)))
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			inserted++
		}
		if inserted == 0 {
			return nil
		}
		return touchFeed(txn, f.Identity(), s.now())
	})
	return inserted, err
}

func touchFeed(txn *badger.Txn, uri string, now time.Time) error {
	entry, err := txn.Get(feedKey(uri))
	if err != nil {
		return err
	}
	var fv feedValue
	if err := entry.Value(func(val []byte) error { return json.Unmarshal(val, &fv) }); err != nil {
		return err
	}
	fv.UpdatedAt = now
	data, err := json.Marshal(fv)
	if err != nil {
		return err
	}
	return txn.Set(feedKey(uri), data)
}

// exists reports whether uri is stored in the given identity space; item lookups are
// scoped to feedURI. Unknown spaces fail closed.
func (s *Store) exists(space identitySpace, uri, feedURI string) (bool, error) {
	var key []byte
	switch space {
	case spaceFeed:
		key = feedKey(uri)
	case spaceItem:
		key = itemKey(feedURI, uri)
	default:
		return false, nil
	}
	if uri == "" {
		return false, nil
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func feedKey(uri string) []byte {
	return []byte(feedPrefix + uri)
}

// Item keys embed the feed URI followed by a NUL separator so one feed's prefix
// never matches another feed whose URI extends it.
func itemsPrefix(feedURI string) []byte {
	return []byte(itemPrefix + feedURI + "\x00")
}

func itemKey(feedURI, itemURI string) []byte {
	return []byte(itemPrefix + feedURI + "\x00" + strings.TrimSpace(itemURI))
}
