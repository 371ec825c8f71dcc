package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/wordgram/pkg/api"
	"github.com/japaniel/wordgram/pkg/dictionary"
	"github.com/japaniel/wordgram/pkg/mcpserver"
	"github.com/japaniel/wordgram/pkg/query"
)

const shutdownTimeout = 5 * time.Second

// loadDictionary builds a fresh in-memory engine from a word list file.
func (e *env) loadDictionary(ctx context.Context, path string) (*query.Engine, error) {
	store := e.newStore()
	res, err := e.newIngester(store, nil).IngestFile(ctx, path)
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("path", path).Int("count", res.Inserted).Dur("elapsed", res.Elapsed).Msg("dictionary loaded")
	return e.newEngine(store), nil
}

// engineFor returns an engine over dict when set, otherwise over the
// database.
func (e *env) engineFor(ctx context.Context, dict string) (*query.Engine, error) {
	if dict != "" {
		return e.loadDictionary(ctx, dict)
	}
	conn, store, err := e.openStore()
	if err != nil {
		return nil, err
	}
	// The store is fully hydrated; queries never touch the database.
	conn.Close()
	return e.newEngine(store), nil
}

func (e *env) serveCommand(c *cli.Context) error {
	dict := c.String("dict")
	if c.Bool("watch") && dict == "" {
		return cli.Exit("serve: --watch requires --dict", 2)
	}
	addr := e.cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	engine, err := e.engineFor(c.Context, dict)
	if err != nil {
		return err
	}
	srv := api.NewServer(engine, e.log)

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		return srv.Listen(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if c.Bool("watch") {
		w := dictionary.NewWatcher(dict, func(ctx context.Context, path string) error {
			next, err := e.loadDictionary(ctx, path)
			if err != nil {
				return err
			}
			srv.SetEngine(next)
			e.log.Info().Str("path", path).Int("count", next.Store().Len()).Msg("dictionary reloaded")
			return nil
		})
		w.Logger = e.log
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	fmt.Fprintf(e.stdout, "wordgram listening on %s (%d words)\n", addr, engine.Store().Len())
	return g.Wait()
}

func (e *env) mcpCommand(c *cli.Context) error {
	engine, err := e.engineFor(c.Context, c.String("dict"))
	if err != nil {
		return err
	}
	return mcpserver.NewServer(engine, e.log).Run(c.Context)
}
