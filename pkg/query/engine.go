// Package query implements the word lookups served to clients: substring
// containment, anagrams of a word and anagrams of every substring match.
package query

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/normalize"
	"github.com/japaniel/wordgram/pkg/substring"
)

// ErrNotFound is the single no-results outcome. Invalid input reports it too.
var ErrNotFound = errors.New("query: not found")

const (
	DefaultResultLimit   = 10
	DefaultMinLongLength = 2
)

// Engine answers queries against a lexicon store. It is safe for concurrent
// use, including while the store is being written to.
type Engine struct {
	store    *lexicon.Store
	searcher substring.Searcher
	limit    int
	minLong  int
	log      zerolog.Logger
}

type Option func(*Engine)

// WithResultLimit caps the combined query's result count.
func WithResultLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithMinLongLength sets the minimum rune count of a combined-query input.
func WithMinLongLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minLong = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSearcher replaces the default trigram searcher.
func WithSearcher(s substring.Searcher) Option {
	return func(e *Engine) { e.searcher = s }
}

// New returns an engine over store.
func New(store *lexicon.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		limit:   DefaultResultLimit,
		minLong: DefaultMinLongLength,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.searcher == nil {
		e.searcher = substring.NewTrigramIndex(store)
	}
	return e
}

// Store returns the store the engine reads from.
func (e *Engine) Store() *lexicon.Store { return e.store }

// valid canonicalizes input and reports whether it is non-empty and free of
// decimal digits.
func valid(input string) (string, bool) {
	canonical, err := normalize.Canonicalize(input)
	if err != nil {
		return "", false
	}
	if strings.IndexFunc(canonical, unicode.IsDigit) >= 0 {
		return "", false
	}
	return canonical, true
}

func (e *Engine) longValid(input string) (string, bool) {
	canonical, ok := valid(input)
	if !ok || utf8.RuneCountInString(canonical) < e.minLong {
		return "", false
	}
	return canonical, true
}

// FindBySubstring returns every word containing input, ordered by label.
func (e *Engine) FindBySubstring(input string) ([]lexicon.WordRecord, error) {
	pattern, ok := valid(input)
	if !ok {
		return nil, ErrNotFound
	}
	matches := slices.SortedFunc(e.searcher.Contains(pattern), lexicon.CompareByLabel)
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return matches, nil
}

// FindAnagrams returns the anagrams of the word spelled label. When label
// has homographs the one with the lowest id is the subject.
func (e *Engine) FindAnagrams(label string) ([]lexicon.WordRecord, error) {
	canonical, ok := valid(label)
	if !ok {
		return nil, ErrNotFound
	}
	subjects := e.store.GetByLabel(canonical)
	if len(subjects) == 0 {
		return nil, ErrNotFound
	}
	return e.anagramsOf(subjects[0])
}

// FindAnagramsByID returns the anagrams of the word with the given id.
func (e *Engine) FindAnagramsByID(id lexicon.WordID) ([]lexicon.WordRecord, error) {
	subject, ok := e.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e.anagramsOf(subject)
}

// FindAlphagram returns the signature of input and every word filed under
// it, in id order. input may be any spelling of the letters.
func (e *Engine) FindAlphagram(input string) (string, []lexicon.WordRecord, error) {
	canonical, ok := valid(input)
	if !ok {
		return "", nil, ErrNotFound
	}
	entry, ok := e.store.Index().EntryFor(normalize.AlphagramKey(canonical))
	if !ok || len(entry.Members) == 0 {
		return "", nil, ErrNotFound
	}
	words := make([]lexicon.WordRecord, 0, len(entry.Members))
	for _, id := range entry.Members {
		rec, ok := e.store.Get(id)
		if !ok {
			err := &lexicon.IntegrityError{Op: "alphagram", Key: entry.Signature, WordID: id, Err: lexicon.ErrUnknownWord}
			e.log.Error().Err(err).Str("alphagram", entry.Signature).Msg("alphagram lookup failed")
			return "", nil, fmt.Errorf("alphagram %q: %w", entry.Signature, err)
		}
		words = append(words, rec)
	}
	return entry.Signature, words, nil
}

func (e *Engine) anagramsOf(subject lexicon.WordRecord) ([]lexicon.WordRecord, error) {
	anagrams, err := e.siblings(subject)
	if err != nil {
		return nil, err
	}
	if len(anagrams) == 0 {
		return nil, ErrNotFound
	}
	slices.SortFunc(anagrams, lexicon.CompareByLabel)
	return anagrams, nil
}

// FindAnagramsBySubstring collects the anagrams of every word containing
// input, without duplicates, ordered by label from the second rune on, and
// returns at most the configured limit.
func (e *Engine) FindAnagramsBySubstring(input string) ([]lexicon.WordRecord, error) {
	pattern, ok := e.longValid(input)
	if !ok {
		return nil, ErrNotFound
	}

	union := make(map[lexicon.WordID]lexicon.WordRecord)
	for subject := range e.searcher.Contains(pattern) {
		anagrams, err := e.siblings(subject)
		if err != nil {
			return nil, err
		}
		for _, rec := range anagrams {
			union[rec.ID] = rec
		}
	}
	if len(union) == 0 {
		return nil, ErrNotFound
	}

	out := make([]lexicon.WordRecord, 0, len(union))
	for _, rec := range union {
		out = append(out, rec)
	}
	slices.SortFunc(out, compareByTail)
	if len(out) > e.limit {
		out = out[:e.limit]
	}
	e.log.Debug().Str("input", pattern).Int("count", len(out)).Int("total", len(union)).Msg("anagrams by substring")
	return out, nil
}

func (e *Engine) siblings(subject lexicon.WordRecord) ([]lexicon.WordRecord, error) {
	anagrams, err := e.store.AnagramsOf(subject.ID)
	if err != nil {
		if errors.Is(err, lexicon.ErrIntegrity) {
			e.log.Error().Err(err).Int64("word_id", int64(subject.ID)).Str("word", subject.Label).Msg("anagram lookup failed")
		}
		return nil, fmt.Errorf("anagrams of %q: %w", subject.Label, err)
	}
	return anagrams, nil
}

// tail drops the first rune of label.
func tail(label string) string {
	_, size := utf8.DecodeRuneInString(label)
	return label[size:]
}

func compareByTail(a, b lexicon.WordRecord) int {
	if c := strings.Compare(tail(a.Label), tail(b.Label)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
