// Package substring answers "which words contain this string" over a
// lexicon store, either by scanning or through a trigram index.
package substring

import (
	"iter"
	"strings"

	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/normalize"
)

// Searcher yields every record whose label contains substr. An empty
// substring matches nothing. Order is unspecified.
type Searcher interface {
	Contains(substr string) iter.Seq[lexicon.WordRecord]
}

// Scan is a Searcher that walks the whole store.
type Scan struct {
	store *lexicon.Store
}

// NewScan returns a scanning searcher over store.
func NewScan(store *lexicon.Store) *Scan {
	return &Scan{store: store}
}

func (s *Scan) Contains(substr string) iter.Seq[lexicon.WordRecord] {
	pattern, ok := fold(substr)
	return func(yield func(lexicon.WordRecord) bool) {
		if !ok {
			return
		}
		for rec := range s.store.All() {
			if strings.Contains(rec.Label, pattern) && !yield(rec) {
				return
			}
		}
	}
}

func fold(substr string) (string, bool) {
	pattern, err := normalize.Canonicalize(substr)
	if err != nil {
		return "", false
	}
	return pattern, true
}

// New returns the searcher named by kind ("trigram" or "scan"). A trigram
// index is registered as an observer of store and built from its current
// contents.
func New(kind string, store *lexicon.Store) Searcher {
	if kind == "scan" {
		return NewScan(store)
	}
	return NewTrigramIndex(store)
}
