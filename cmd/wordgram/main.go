package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/japaniel/wordgram/pkg/config"
	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/logs"
	"github.com/japaniel/wordgram/pkg/query"
	"github.com/japaniel/wordgram/pkg/substring"
)

var Version = "0.1.0"

// env is what every command needs after global flags are applied.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

// loadConfigWithOverrides loads the config file and applies global flag
// overrides on top of it.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *env) before(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	log, err := logs.New(e.stderr, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}
	e.cfg, e.log = cfg, log
	return nil
}

// newStore returns an empty store sized by the index settings.
func (e *env) newStore() *lexicon.Store {
	return lexicon.NewStore(lexicon.WithShards(e.cfg.Index.Shards))
}

// newEngine builds a query engine over store using the query settings.
func (e *env) newEngine(store *lexicon.Store) *query.Engine {
	return query.New(store,
		query.WithResultLimit(e.cfg.Query.ResultLimit),
		query.WithMinLongLength(e.cfg.Query.MinLongLength),
		query.WithSearcher(substring.New(e.cfg.Query.Substring, store)),
		query.WithLogger(e.log),
	)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	e := &env{stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	return &cli.App{
		Name:                   "wordgram",
		Usage:                  "Substring and anagram lookups over word lists",
		Version:                Version,
		UseShortOptionHandling: true,
		Writer:                 stdout,
		ErrWriter:              stderr,
		// Exit codes are handled by main so commands can be run in-process.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.toml or .kdl)",
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to SQLite database (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error (overrides config)",
			},
		},
		Before: e.before,
		Commands: []*cli.Command{
			{
				Name:      "load",
				Usage:     "Load word lists matching glob patterns into the database",
				ArgsUsage: "PATTERN...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "lang",
						Usage: "Language to tag loaded words with (overrides ingest.default_language)",
					},
					&cli.StringFlag{
						Name:  "download",
						Usage: "Download URL used when the single PATTERN names a missing file",
					},
				},
				Action: e.loadCommand,
			},
			{
				Name:   "status",
				Usage:  "Show the database word count, loaded files and languages",
				Action: e.statusCommand,
			},
			{
				Name:      "tag",
				Usage:     "Set the language of stored words",
				ArgsUsage: "WORD...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "lang",
						Usage:    "Language to tag the words with",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "family",
						Usage: "Also tag every anagram of each WORD",
					},
				},
				Action: e.tagCommand,
			},
			{
				Name:      "substrings",
				Aliases:   []string{"substring"},
				Usage:     "List words containing INPUT",
				ArgsUsage: "INPUT",
				Action:    e.queryCommand((*query.Engine).FindBySubstring),
			},
			{
				Name:      "anagrams",
				Aliases:   []string{"anagram"},
				Usage:     "List anagrams of the word INPUT",
				ArgsUsage: "INPUT",
				Action:    e.queryCommand((*query.Engine).FindAnagrams),
			},
			{
				Name:      "substringanagrams",
				Aliases:   []string{"substringanagram"},
				Usage:     "List anagrams of every word containing INPUT",
				ArgsUsage: "INPUT",
				Action:    e.queryCommand((*query.Engine).FindAnagramsBySubstring),
			},
			{
				Name:  "serve",
				Usage: "Serve the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
					&cli.StringFlag{
						Name:  "dict",
						Usage: "Serve from this word list in memory instead of the database",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Reload when the --dict file changes",
					},
				},
				Action: e.serveCommand,
			},
			{
				Name:  "mcp",
				Usage: "Run the MCP server on stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dict",
						Usage: "Serve from this word list in memory instead of the database",
					},
				},
				Action: e.mcpCommand,
			},
		},
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args)
	if err == nil {
		return
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		cancel()
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	cancel()
	os.Exit(1)
}
