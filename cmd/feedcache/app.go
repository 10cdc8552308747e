package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bakkerme/feedcache/internal/collection"
	"github.com/bakkerme/feedcache/internal/config"
	"github.com/bakkerme/feedcache/internal/core"
	"github.com/bakkerme/feedcache/internal/observability/otelx"
	"github.com/bakkerme/feedcache/internal/sources/rss"
	"github.com/bakkerme/feedcache/internal/sources/rss/impl"
	"github.com/bakkerme/feedcache/internal/store"
	"github.com/bakkerme/feedcache/internal/store/badger"
	"github.com/bakkerme/feedcache/internal/store/sqlite"
)

// runtime holds what the root Before hook sets up for the subcommands.
type runtime struct {
	env      config.EnvConfig
	logger   *slog.Logger
	shutdown otelx.ShutdownFunc
}

func newApp(stdout, stderr io.Writer) *cli.App {
	rt := &runtime{}
	return &cli.App{
		Name:  "feedcache",
		Usage: "Keep a local, deduplicated cache of RSS feeds",
		Description: `Feeds are fetched from their source, stored once by URI and
		updated by appending only the items that are not stored yet.

		Flags can generally be set via environment variables, e.g.:

		--db => FEEDCACHE_DB=feedcache.db
		--store => FEEDCACHE_STORE=badger
		`,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Database path (sqlite file or badger directory)",
				EnvVars: []string{"FEEDCACHE_DB"},
				Value:   "feedcache.db",
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Storage backend: sqlite or badger",
				EnvVars: []string{"FEEDCACHE_STORE"},
				Value:   config.StoreSQLite,
			},
		},
		Before: func(cctx *cli.Context) error {
			return rt.setup(cctx, stderr)
		},
		After: func(cctx *cli.Context) error {
			return rt.teardown()
		},
		Commands: []*cli.Command{
			addCmd(rt),
			updateCmd(rt),
			listCmd(rt),
			removeCmd(rt),
			syncCmd(rt),
			migrateCmd(rt),
		},
		Action: func(cctx *cli.Context) error {
			return cli.ShowAppHelp(cctx)
		},
	}
}

func (rt *runtime) setup(cctx *cli.Context, stderr io.Writer) error {
	rt.env = config.LoadEnv()
	rt.env.DatabasePath = cctx.String("db")
	rt.env.StoreKind = cctx.String("store")
	rt.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: rt.env.LogLevel}))

	shutdown, err := otelx.Init(cctx.Context, rt.logger, rt.env.OTel)
	if err != nil {
		return err
	}
	rt.shutdown = shutdown
	return nil
}

func (rt *runtime) teardown() error {
	if rt.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rt.shutdown(ctx)
}

func (rt *runtime) openStore() (store.Store, error) {
	switch rt.env.StoreKind {
	case config.StoreSQLite:
		return sqlite.New(rt.env.DatabasePath)
	case config.StoreBadger:
		return badger.New(rt.env.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown store %q (expected %s or %s)", rt.env.StoreKind, config.StoreSQLite, config.StoreBadger)
	}
}

func (rt *runtime) fetchOptions() rss.FetchOptions {
	return rss.FetchOptions{
		Timeout:   rt.env.RSS.FetchTimeout,
		UserAgent: rt.env.RSS.UserAgent,
	}
}

// withCollection opens a collection for the duration of one command.
func (rt *runtime) withCollection(ctx context.Context, options rss.FetchOptions, fn func(ctx context.Context, c *collection.Collection) error) error {
	st, err := rt.openStore()
	if err != nil {
		return err
	}
	fetcher := impl.NewFetcher(rt.env.RSS.HTTPTimeout, rt.env.RSS.UserAgent, rt.env.RSS.FetchAttempts)
	c, err := collection.New(st,
		fetcher,
		collection.WithLogger(rt.logger),
		collection.WithFetchOptions(options),
	)
	if err != nil {
		return errors.Join(err, st.Close())
	}
	return errors.Join(fn(core.WithLogger(ctx, rt.logger), c), c.Close())
}
