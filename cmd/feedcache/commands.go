package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/bakkerme/feedcache/internal/collection"
	"github.com/bakkerme/feedcache/internal/config"
	"github.com/bakkerme/feedcache/internal/feed"
	"github.com/bakkerme/feedcache/internal/filter"
	"github.com/bakkerme/feedcache/internal/sources/rss"
	"github.com/bakkerme/feedcache/internal/store/sqlite"
)

func addCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Fetch and store one or more feeds",
		ArgsUsage: "URI...",
		Action: func(cctx *cli.Context) error {
			uris := cctx.Args().Slice()
			if len(uris) == 0 {
				return fmt.Errorf("at least one feed URI is required")
			}
			for _, uri := range uris {
				if err := config.ValidateFeedURI(uri); err != nil {
					return err
				}
			}
			return rt.withCollection(cctx.Context, rt.fetchOptions(), func(ctx context.Context, c *collection.Collection) error {
				feeds, err := newFeeds(c, uris)
				if err != nil {
					return err
				}
				_, err = c.AddMany(ctx, feeds)
				fmt.Fprintf(cctx.App.Writer, "%d feed(s) cached\n", c.Len())
				return err
			})
		},
	}
}

func updateCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Append newly published items to every stored feed",
		Action: func(cctx *cli.Context) error {
			return rt.withCollection(cctx.Context, rt.fetchOptions(), func(ctx context.Context, c *collection.Collection) error {
				_, err := c.Update(ctx)
				fmt.Fprintf(cctx.App.Writer, "%d feed(s) updated\n", c.Len())
				return err
			})
		},
	}
}

func listCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print the cached feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "where",
				Usage: "Feed filter expression, e.g. 'items.count > 10'",
			},
			&cli.StringFlag{
				Name:  "where-item",
				Usage: "Item filter expression, e.g. 'title contains \"Go\"'",
			},
			&cli.BoolFlag{
				Name:  "items",
				Usage: "Print each feed's items",
			},
		},
		Action: func(cctx *cli.Context) error {
			feedFilter, err := filter.CompileFeed(cctx.String("where"))
			if err != nil {
				return err
			}
			itemFilter, err := filter.CompileItem(cctx.String("where-item"))
			if err != nil {
				return err
			}
			showItems := cctx.Bool("items") || itemFilter.String() != ""
			return rt.withCollection(cctx.Context, rt.fetchOptions(), func(ctx context.Context, c *collection.Collection) error {
				if _, err := c.Feeds(ctx); err != nil {
					return err
				}
				return printFeeds(cctx.App.Writer, c, feedFilter, itemFilter, showItems)
			})
		},
	}
}

func removeCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Delete a feed and its items",
		ArgsUsage: "URI",
		Action: func(cctx *cli.Context) error {
			uri := cctx.Args().First()
			if uri == "" {
				return fmt.Errorf("feed URI is required")
			}
			return rt.withCollection(cctx.Context, rt.fetchOptions(), func(ctx context.Context, c *collection.Collection) error {
				if _, err := c.Feeds(ctx); err != nil {
					return err
				}
				f, ok := c.Lookup(uri)
				if !ok {
					return fmt.Errorf("feed %q is not cached", uri)
				}
				if err := c.Remove(ctx, f); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "removed %s\n", uri)
				return nil
			})
		},
	}
}

func syncCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Add every feed from a feeds document, then update all feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the feeds document",
				EnvVars: []string{"FEEDCACHE_CONFIG"},
				Value:   "feeds.yaml",
			},
		},
		Action: func(cctx *cli.Context) error {
			doc, err := config.LoadFeedsDocument(cctx.String("config"))
			if err != nil {
				return fmt.Errorf("load feeds document: %w", err)
			}
			options := rt.fetchOptions()
			if doc.FetchTimeout > 0 {
				options.Timeout = doc.FetchTimeout.Std()
			}
			if doc.UserAgent != "" {
				options.UserAgent = doc.UserAgent
			}
			return rt.withCollection(cctx.Context, options, func(ctx context.Context, c *collection.Collection) error {
				if _, err := c.Feeds(ctx); err != nil {
					return err
				}
				var missing []string
				for _, uri := range doc.URIs() {
					if _, ok := c.Lookup(uri); !ok {
						missing = append(missing, uri)
					}
				}
				feeds, err := newFeeds(c, missing)
				if err != nil {
					return err
				}
				if len(feeds) > 0 {
					// Failed adds are reported below; the update still runs.
					if _, addErr := c.AddMany(ctx, feeds); addErr != nil {
						rt.logger.Warn("some feeds could not be added", "error", addErr)
					}
				}
				_, err = c.Update(ctx)
				fmt.Fprintf(cctx.App.Writer, "%d feed(s) synced, %d new\n", c.Len(), len(feeds))
				return err
			})
		},
	}
}

func migrateCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Apply or roll back the sqlite schema",
		Description: `Opening the sqlite store applies pending migrations. --down rolls every migration back.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "down",
				Usage: "Roll back all migrations",
			},
		},
		Action: func(cctx *cli.Context) error {
			if rt.env.StoreKind != config.StoreSQLite {
				fmt.Fprintf(cctx.App.Writer, "store %q has no schema to migrate\n", rt.env.StoreKind)
				return nil
			}
			st, err := sqlite.New(rt.env.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()
			if cctx.Bool("down") {
				if err := st.MigrateDown(); err != nil {
					return err
				}
			}
			version, dirty, err := st.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cctx.App.Writer, "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newFeeds(c *collection.Collection, uris []string) ([]*feed.Feed, error) {
	feeds := make([]*feed.Feed, 0, len(uris))
	for _, uri := range uris {
		f, err := c.NewFeed(uri)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func printFeeds(w io.Writer, c *collection.Collection, feedFilter, itemFilter *filter.Filter, showItems bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range c.All() {
		ok, err := feedFilter.MatchFeed(f)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d items\t%s\n", f.Identity(), f.Title(), f.Len(), rss.FormatTimestamp(f.LastUpdatedAt()))
		if !showItems {
			continue
		}
		for _, item := range f.Items() {
			ok, err := itemFilter.MatchItem(f, item)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t\n", item.Published(""), item.Title(), item.URI())
			}
		}
	}
	return tw.Flush()
}
