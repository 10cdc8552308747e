package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"github.com/bakkerme/feedcache/internal/core"
	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/store"
)

const (
	feedTable = "feed"
	itemTable = "feed_items"
)

// identitySpace selects which URI namespace an existence check runs against.
type identitySpace int

const (
	spaceFeed identitySpace = iota + 1
	spaceItem
)

var identityTables = map[identitySpace]string{
	spaceFeed: feedTable,
	spaceItem: itemTable,
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the relational feed store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database at dsn and applies migrations.
func New(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := connection(dsn)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) List(ctx context.Context) ([]store.FeedRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "uri", "title", "description", "lastupdated", "created_at", "updated_at").From(feedTable)
	sb.OrderBy("id").Asc()
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	var records []store.FeedRecord
	for rows.Next() {
		var (
			rec                  store.FeedRecord
			lastUpdated          sql.NullInt64
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.URI, &rec.Title, &rec.Description, &lastUpdated, &createdAt, &updatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		rec.LastUpdatedAt = fromUnix(lastUpdated)
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	// Release the single connection before querying items.
	_ = rows.Close()

	for i := range records {
		items, err := s.feedItems(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Items = items
	}
	return records, nil
}

// Save inserts f when its identity is new and appends any items not yet stored for it.
func (s *Store) Save(ctx context.Context, f *feed.Feed) (*feed.Feed, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
	}
	logger := core.LoggerFromContext(ctx).With("feed_uri", f.Identity())

	known, err := s.exists(ctx, s.db, spaceFeed, f.Identity(), 0)
	if err != nil {
		return f, fmt.Errorf("%w: lookup feed %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	if !known {
		if err := f.Refresh(ctx); err != nil {
			return f, err
		}
		if err := s.insertFeed(ctx, f); err != nil {
			return f, fmt.Errorf("%w: insert feed %s: %w", feed.ErrPersistence, f.Identity(), err)
		}
		logger.Info("feed stored", "title", f.Title())
	}

	feedID, err := s.feedID(ctx, f.Identity())
	if err != nil {
		return f, fmt.Errorf("%w: resolve feed %s: %w", feed.ErrPersistence, f.Identity(), err)
	}

	// Sync items from an independent copy so persistence never mutates the caller's feed.
	latest := f.Clone()
	if err := latest.Refresh(ctx); err != nil {
		return f, err
	}
	inserted, err := s.saveItems(ctx, feedID, latest)
	if err != nil {
		return f, err
	}
	logger.Debug("feed items synchronized", "items", latest.Len(), "inserted", inserted)
	return f, nil
}

// Remove deletes the feed and its items.
func (s *Store) Remove(ctx context.Context, f *feed.Feed) error {
	if f == nil {
		return fmt.Errorf("%w: feed is required", feed.ErrInvalidIdentity)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %w", feed.ErrPersistence, f.Identity(), err)
	}

	sub := sqlbuilder.SQLite.NewSelectBuilder()
	sub.Select("id").From(feedTable).Where(sub.Equal("uri", f.Identity()))
	delItems := sqlbuilder.SQLite.NewDeleteBuilder()
	delItems.DeleteFrom(itemTable).Where(delItems.In("feed_id", sub))
	query, args := delItems.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: remove items of %s: %w", feed.ErrPersistence, f.Identity(), err)
	}

	delFeed := sqlbuilder.SQLite.NewDeleteBuilder()
	delFeed.DeleteFrom(feedTable).Where(delFeed.Equal("uri", f.Identity()))
	query, args = delFeed.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: remove %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: remove %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	return nil
}

func (s *Store) insertFeed(ctx context.Context, f *feed.Feed) error {
	now := s.now().Unix()
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(feedTable).
		Cols("uri", "title", "description", "lastupdated", "created_at", "updated_at").
		Values(f.Identity(), f.Title(), f.Description(), toUnix(f.LastUpdatedAt()), now, now)
	query, args := ib.Build()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// saveItems inserts unknown items in one transaction and returns how many were new.
func (s *Store) saveItems(ctx context.Context, feedID int64, f *feed.Feed) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin item sync for %s: %w", feed.ErrPersistence, f.Identity(), err)
	}

	inserted := 0
	var errs []error
	for _, item := range f.Items() {
		known, err := s.exists(ctx, tx, spaceItem, item.URI(), feedID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: lookup item %s: %w", feed.ErrPersistence, item.URI(), err))
			continue
		}
		if known {
			continue
		}
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto(itemTable).
			Cols("feed_id", "title", "uri", "description", "published").
			Values(feedID, item.Title(), item.URI(), item.Description(""), toUnix(item.PublishedAt()))
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			errs = append(errs, fmt.Errorf("%w: insert item %s: %w", feed.ErrPersistence, item.URI(), err))
			continue
		}
		inserted++
	}

	if inserted > 0 {
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update(feedTable).Set(ub.Assign("updated_at", s.now().Unix())).Where(ub.Equal("id", feedID))
		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			errs = append(errs, fmt.Errorf("%w: touch feed %s: %w", feed.ErrPersistence, f.Identity(), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit items for %s: %w", feed.ErrPersistence, f.Identity(), err)
	}
	return inserted, errors.Join(errs...)
}

func (s *Store) feedItems(ctx context.Context, feedID int64) ([]store.ItemRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("title", "uri", "description", "published").From(itemTable)
	sb.Where(sb.Equal("feed_id", feedID))
	sb.OrderBy("published DESC", "id ASC")
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items for feed %d: %w", feedID, err)
	}
	defer rows.Close()

	var items []store.ItemRecord
	for rows.Next() {
		var (
			item      store.ItemRecord
			published sql.NullInt64
		)
		if err := rows.Scan(&item.Title, &item.URI, &item.Description, &published); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.PublishedAt = fromUnix(published)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) feedID(ctx context.Context, uri string) (int64, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id").From(feedTable).Where(sb.Equal("uri", uri)).Limit(1)
	query, args := sb.Build()
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// exists reports whether uri is stored in the given identity space. Item lookups are
// scoped to feedID. Unknown spaces fail closed.
func (s *Store) exists(ctx context.Context, q querier, space identitySpace, uri string, feedID int64) (bool, error) {
	table, ok := identityTables[space]
	if !ok || uri == "" {
		return false, nil
	}
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("1").From(table).Where(sb.Equal("uri", uri))
	if space == spaceItem {
		sb.Where(sb.Equal("feed_id", feedID))
	}
	sb.Limit(1)
	query, args := sb.Build()

	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func toUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Unix()
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}
