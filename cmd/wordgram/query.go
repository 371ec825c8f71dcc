package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/query"
)

type lookupFunc func(*query.Engine, string) ([]lexicon.WordRecord, error)

// queryCommand runs fn against the database and prints one id<TAB>label per
// line. No results print None and exit with status 1.
func (e *env) queryCommand(fn lookupFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit(fmt.Sprintf("%s: exactly one INPUT is required", c.Command.Name), 2)
		}
		conn, store, err := e.openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		recs, err := fn(e.newEngine(store), c.Args().First())
		if errors.Is(err, query.ErrNotFound) {
			fmt.Fprintln(e.stdout, "None")
			return cli.Exit("", 1)
		}
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Fprintf(e.stdout, "%d\t%s\n", r.ID, r.Label)
		}
		return nil
	}
}
