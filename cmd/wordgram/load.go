package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	wdb "github.com/japaniel/wordgram/pkg/db"
	"github.com/japaniel/wordgram/pkg/dictionary"
	"github.com/japaniel/wordgram/pkg/ingest"
	"github.com/japaniel/wordgram/pkg/lexicon"
)

// openStore opens the database and hydrates a store from it.
func (e *env) openStore() (*sql.DB, *lexicon.Store, error) {
	conn, err := wdb.Open(e.cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := e.newStore()
	n, err := wdb.LoadStore(conn, store)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to load words: %w", err)
	}
	e.log.Debug().
		Str("path", e.cfg.Database.Path).
		Int("count", n).
		Int("shards", store.Index().Shards()).
		Msg("store hydrated")
	return conn, store, nil
}

func (e *env) newIngester(store *lexicon.Store, conn *sql.DB) *ingest.Ingester {
	ig := ingest.NewIngester(store, conn)
	ig.Workers = e.cfg.Ingest.Workers
	ig.BatchSize = e.cfg.Ingest.BatchSize
	ig.FlushInterval = e.cfg.FlushInterval()
	ig.DefaultLanguage = e.cfg.Ingest.DefaultLanguage
	ig.Logger = e.log
	return ig
}

func (e *env) loadCommand(c *cli.Context) error {
	patterns := c.Args().Slice()
	if len(patterns) == 0 {
		return cli.Exit("load: at least one PATTERN is required", 2)
	}

	if url := c.String("download"); url != "" {
		if len(patterns) != 1 {
			return cli.Exit("load: --download takes exactly one file path", 2)
		}
		d := dictionary.NewDownloader()
		d.Logger = e.log
		if err := d.EnsureDictionary(c.Context, patterns[0], url); err != nil {
			return fmt.Errorf("failed to fetch dictionary: %w", err)
		}
	}

	files, err := dictionary.Resolve(patterns...)
	if err != nil {
		return err
	}

	conn, store, err := e.openStore()
	if err != nil {
		return err
	}
	defer conn.Close()

	ig := e.newIngester(store, conn)
	if lang := c.String("lang"); lang != "" {
		ig.DefaultLanguage = lang
	}
	ig.OnProgress = func(count int) {
		e.log.Debug().Int("count", count).Msg("ingest progress")
	}

	for _, path := range files {
		res, err := ig.IngestFile(c.Context, path)
		if err != nil {
			return err
		}
		if res.AlreadyLoaded {
			fmt.Fprintf(e.stdout, "Skipped %s: already loaded\n", path)
			continue
		}
		fmt.Fprintf(e.stdout, "Loaded %d words from %s in %s\n", res.Inserted, path, res.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(e.stdout, "Database %s holds %d words\n", e.cfg.Database.Path, store.Len())
	return nil
}
