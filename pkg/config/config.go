// Package config loads wordgram settings from TOML or KDL files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "wordgram.toml"

type Config struct {
	Database Database `toml:"database"`
	Ingest   Ingest   `toml:"ingest"`
	Query    Query    `toml:"query"`
	Index    Index    `toml:"index"`
	Server   Server   `toml:"server"`
	Log      Log      `toml:"log"`
}

type Database struct {
	Path string `toml:"path"`
}

type Ingest struct {
	Workers         int    `toml:"workers"`
	BatchSize       int    `toml:"batch_size"`
	FlushIntervalMs int    `toml:"flush_interval_ms"`
	DefaultLanguage string `toml:"default_language"`
}

type Query struct {
	ResultLimit   int    `toml:"result_limit"`
	MinLongLength int    `toml:"min_long_length"`
	Substring     string `toml:"substring"` // "trigram" or "scan"
}

// Index tunes the in-memory alphagram index.
type Index struct {
	Shards int `toml:"shards"`
}

// MaxShards bounds Index.Shards.
const MaxShards = 4096

type Server struct {
	Addr string `toml:"addr"`
}

type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// ConfigError reports an invalid or unparsable setting.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %q): %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	ErrOutOfRange      = errors.New("value out of range")
	ErrUnknownOption   = errors.New("unknown option")
	ErrUnsupportedFile = errors.New("unsupported config file extension")
)

func Default() *Config {
	return &Config{
		Database: Database{Path: "wordgram.db"},
		Ingest: Ingest{
			Workers:         4,
			BatchSize:       500,
			FlushIntervalMs: 100,
		},
		Query: Query{
			ResultLimit:   10,
			MinLongLength: 2,
			Substring:     "trigram",
		},
		Index:  Index{Shards: 64},
		Server: Server{Addr: ":8080"},
		Log:    Log{Level: "info"},
	}
}

// FlushInterval is Ingest.FlushIntervalMs as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Ingest.FlushIntervalMs) * time.Millisecond
}

// Load reads path on top of Default. The format follows the extension
// (.toml or .kdl). A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case ".kdl":
		if err := parseKDL(string(data), cfg); err != nil {
			return nil, err
		}
	default:
		return nil, NewConfigError("path", path, ErrUnsupportedFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return NewConfigError("database.path", "", ErrOutOfRange)
	}
	if c.Ingest.Workers < 1 {
		return NewConfigError("ingest.workers", strconv.Itoa(c.Ingest.Workers), ErrOutOfRange)
	}
	if c.Ingest.BatchSize < 1 {
		return NewConfigError("ingest.batch_size", strconv.Itoa(c.Ingest.BatchSize), ErrOutOfRange)
	}
	if c.Ingest.FlushIntervalMs < 0 {
		return NewConfigError("ingest.flush_interval_ms", strconv.Itoa(c.Ingest.FlushIntervalMs), ErrOutOfRange)
	}
	if c.Query.ResultLimit < 1 {
		return NewConfigError("query.result_limit", strconv.Itoa(c.Query.ResultLimit), ErrOutOfRange)
	}
	if c.Query.MinLongLength < 1 {
		return NewConfigError("query.min_long_length", strconv.Itoa(c.Query.MinLongLength), ErrOutOfRange)
	}
	switch c.Query.Substring {
	case "trigram", "scan":
	default:
		return NewConfigError("query.substring", c.Query.Substring, ErrUnknownOption)
	}
	if c.Index.Shards < 1 || c.Index.Shards > MaxShards {
		return NewConfigError("index.shards", strconv.Itoa(c.Index.Shards), ErrOutOfRange)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return NewConfigError("log.level", c.Log.Level, ErrUnknownOption)
	}
	return nil
}

func parseKDL(content string, cfg *Config) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "database":
			for _, cn := range n.Children {
				assignString(cn, "path", &cfg.Database.Path)
			}
		case "ingest":
			for _, cn := range n.Children {
				assignInt(cn, "workers", &cfg.Ingest.Workers)
				assignInt(cn, "batch_size", &cfg.Ingest.BatchSize)
				assignInt(cn, "flush_interval_ms", &cfg.Ingest.FlushIntervalMs)
				assignString(cn, "default_language", &cfg.Ingest.DefaultLanguage)
			}
		case "query":
			for _, cn := range n.Children {
				assignInt(cn, "result_limit", &cfg.Query.ResultLimit)
				assignInt(cn, "min_long_length", &cfg.Query.MinLongLength)
				assignString(cn, "substring", &cfg.Query.Substring)
			}
		case "index":
			for _, cn := range n.Children {
				assignInt(cn, "shards", &cfg.Index.Shards)
			}
		case "server":
			for _, cn := range n.Children {
				assignString(cn, "addr", &cfg.Server.Addr)
			}
		case "log":
			for _, cn := range n.Children {
				assignString(cn, "level", &cfg.Log.Level)
				assignBool(cn, "pretty", &cfg.Log.Pretty)
			}
		}
	}
	return nil
}

func assignString(n *document.Node, name string, dst *string) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstStringArg(n); ok {
		*dst = v
	}
}

func assignInt(n *document.Node, name string, dst *int) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstIntArg(n); ok {
		*dst = v
	}
}

func assignBool(n *document.Node, name string, dst *bool) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstBoolArg(n); ok {
		*dst = v
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}
