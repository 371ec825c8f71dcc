package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	wdb "github.com/japaniel/wordgram/pkg/db"
	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/normalize"
)

func (e *env) statusCommand(c *cli.Context) error {
	conn, err := wdb.Open(e.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	count, err := wdb.CountWords(conn)
	if err != nil {
		return err
	}
	dicts, err := wdb.Dictionaries(conn)
	if err != nil {
		return err
	}
	langs, err := wdb.Languages(conn)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Database %s holds %d words\n", e.cfg.Database.Path, count)
	if len(dicts) == 0 {
		fmt.Fprintln(e.stdout, "No word lists loaded")
	}
	for _, d := range dicts {
		fmt.Fprintf(e.stdout, "%s\t%d words\tloaded %s\n", d.Path, d.WordCount, d.LoadedAt.Local().Format(time.DateTime))
	}
	if len(langs) > 0 {
		labels := make([]string, len(langs))
		for i, tag := range langs {
			labels[i] = tag.Label
		}
		fmt.Fprintf(e.stdout, "Languages: %s\n", strings.Join(labels, ", "))
	}
	return nil
}

// tagCommand backfills the language of every stored homograph of each
// WORD, and of its whole anagram family with --family.
func (e *env) tagCommand(c *cli.Context) error {
	words := c.Args().Slice()
	if len(words) == 0 {
		return cli.Exit("tag: at least one WORD is required", 2)
	}
	label, err := normalize.Canonicalize(c.String("lang"))
	if err != nil {
		return cli.Exit("tag: --lang must not be blank", 2)
	}

	conn, store, err := e.openStore()
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tag tx: %w", err)
	}
	defer tx.Rollback()

	lang, err := wdb.CreateOrGetLanguage(tx, label)
	if err != nil {
		return err
	}

	var targets []lexicon.WordRecord
	seen := make(map[lexicon.WordID]bool)
	for _, w := range words {
		recs, err := wdb.WordsByLabel(tx, w)
		if errors.Is(err, wdb.ErrNotFound) {
			fmt.Fprintf(e.stderr, "No stored word %q\n", w)
			continue
		}
		if err != nil {
			return err
		}
		if c.Bool("family") {
			if recs, err = wdb.WordsByAlphagram(tx, recs[0].Alphagram); err != nil {
				return err
			}
		}
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			if err := wdb.SetWordLanguage(tx, rec.ID, lang); err != nil {
				return err
			}
			targets = append(targets, rec)
		}
	}
	if len(targets) == 0 {
		fmt.Fprintln(e.stdout, "None")
		return cli.Exit("", 1)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tags: %w", err)
	}

	// Mirror the change into the hydrated store for the totals below.
	langs := store.Languages()
	if _, ok := langs.Get(lang); !ok {
		if err := langs.Restore(lexicon.LanguageTag{ID: lang, Label: label, CreatedAt: time.Now()}); err != nil {
			return err
		}
	}
	for _, rec := range targets {
		if err := store.SetLanguage(rec.ID, lang); err != nil {
			return err
		}
	}
	total := 0
	for rec := range store.All() {
		if rec.Language == lang {
			total++
		}
	}
	e.log.Debug().Str("language", label).Int("tagged", len(targets)).Msg("words tagged")
	fmt.Fprintf(e.stdout, "Tagged %d words as %s (%d in total)\n", len(targets), label, total)
	return nil
}
