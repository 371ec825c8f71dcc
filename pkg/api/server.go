// Package api serves the query engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/query"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Word is the JSON shape of a result.
type Word struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Alphagram is an anagram family: a signature and the words filed under it.
type Alphagram struct {
	Label string `json:"label"`
	Words []Word `json:"words"`
}

type Language struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Server routes HTTP requests to the current engine. The engine may be
// replaced while requests are in flight.
type Server struct {
	app    *fiber.App
	engine atomic.Pointer[query.Engine]
	log    zerolog.Logger
}

func NewServer(engine *query.Engine, log zerolog.Logger) *Server {
	s := &Server{log: log}
	s.engine.Store(engine)
	s.app = fiber.New(fiber.Config{
		AppName:               "wordgram",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// SetEngine swaps the engine used by subsequent requests.
func (s *Server) SetEngine(e *query.Engine) {
	s.engine.Store(e)
}

func (s *Server) Engine() *query.Engine { return s.engine.Load() }

func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("http server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/", s.index)

	api := s.app.Group("/api")
	lookups := map[string]func(*query.Engine, string) ([]lexicon.WordRecord, error){
		"substrings":        (*query.Engine).FindBySubstring,
		"substring":         (*query.Engine).FindBySubstring,
		"anagrams":          (*query.Engine).FindAnagrams,
		"anagram":           (*query.Engine).FindAnagrams,
		"substringanagrams": (*query.Engine).FindAnagramsBySubstring,
		"substringanagram":  (*query.Engine).FindAnagramsBySubstring,
	}
	for name, fn := range lookups {
		api.Get("/"+name+"/:input", s.lookup(fn))
		api.Get("/"+name, notFound)
	}
	api.Get("/words", s.words)
	api.Get("/words/:id", s.word)
	api.Get("/words/:id/anagrams", s.wordAnagrams)
	api.Get("/alphagrams/:key", s.alphagram)
	api.Get("/alphagrams", notFound)
	api.Get("/languages", s.languages)
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON("None")
}

func (s *Server) lookup(fn func(*query.Engine, string) ([]lexicon.WordRecord, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := url.PathUnescape(c.Params("input"))
		if err != nil {
			return notFound(c)
		}
		recs, err := fn(s.engine.Load(), input)
		if errors.Is(err, query.ErrNotFound) {
			return notFound(c)
		}
		if err != nil {
			return err
		}
		return c.JSON(toWords(recs))
	}
}

// wordID reads the :id route parameter. ok is false for anything that is
// not a positive integer.
func wordID(c *fiber.Ctx) (lexicon.WordID, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return lexicon.WordID(id), true
}

func (s *Server) word(c *fiber.Ctx) error {
	id, ok := wordID(c)
	if !ok {
		return notFound(c)
	}
	rec, ok := s.engine.Load().Store().Get(id)
	if !ok {
		return notFound(c)
	}
	return c.JSON(Word{ID: int64(rec.ID), Label: rec.Label})
}

// wordAnagrams answers for one homograph by id, where /api/anagrams/:input
// always picks the lowest id spelled input.
func (s *Server) wordAnagrams(c *fiber.Ctx) error {
	id, ok := wordID(c)
	if !ok {
		return notFound(c)
	}
	recs, err := s.engine.Load().FindAnagramsByID(id)
	if errors.Is(err, query.ErrNotFound) {
		return notFound(c)
	}
	if err != nil {
		return err
	}
	return c.JSON(toWords(recs))
}

func (s *Server) alphagram(c *fiber.Ctx) error {
	input, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		return notFound(c)
	}
	key, recs, err := s.engine.Load().FindAlphagram(input)
	if errors.Is(err, query.ErrNotFound) {
		return notFound(c)
	}
	if err != nil {
		return err
	}
	return c.JSON(Alphagram{Label: key, Words: toWords(recs)})
}

func (s *Server) words(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", DefaultPageSize)
	if offset < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "offset must not be negative")
	}
	if limit < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	limit = min(limit, MaxPageSize)

	page := make([]Word, 0, limit)
	i := 0
	for rec := range s.engine.Load().Store().All() {
		if i >= offset {
			page = append(page, Word{ID: int64(rec.ID), Label: rec.Label})
			if len(page) == limit {
				break
			}
		}
		i++
	}
	return c.JSON(page)
}

func (s *Server) languages(c *fiber.Ctx) error {
	tags := s.engine.Load().Store().Languages().All()
	out := make([]Language, 0, len(tags))
	for _, t := range tags {
		out = append(out, Language{ID: int64(t.ID), Label: t.Label})
	}
	return c.JSON(out)
}

func (s *Server) index(c *fiber.Ctx) error {
	count := s.engine.Load().Store().Len()
	c.Type("html", "utf-8")
	return c.SendString(fmt.Sprintf(indexHTML, count))
}

const indexHTML = `<!doctype html>
<html>
<head><title>wordgram</title></head>
<body>
<h1>wordgram</h1>
<p>%d words loaded.</p>
<ul>
<li><code>/api/substrings/:input</code></li>
<li><code>/api/anagrams/:input</code></li>
<li><code>/api/substringanagrams/:input</code></li>
<li><code>/api/words?offset=0&amp;limit=100</code></li>
<li><code>/api/words/:id</code></li>
<li><code>/api/words/:id/anagrams</code></li>
<li><code>/api/alphagrams/:key</code></li>
<li><code>/api/languages</code></li>
</ul>
</body>
</html>
`

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code == fiber.StatusNotFound {
		return notFound(c)
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return err
}

func toWords(recs []lexicon.WordRecord) []Word {
	out := make([]Word, len(recs))
	for i, r := range recs {
		out[i] = Word{ID: int64(r.ID), Label: r.Label}
	}
	return out
}
