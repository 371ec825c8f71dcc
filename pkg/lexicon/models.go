// Package lexicon holds the in-memory word store and the alphagram index that
// groups its words by sorted-letter signature.
package lexicon

import (
	"slices"
	"time"
)

// WordID identifies a stored word. IDs start at 1; 0 is never assigned.
type WordID int64

// LanguageID identifies a language tag. 0 means no language.
type LanguageID int64

// WordRecord is a canonical word entry. Homographs share a Label but have
// distinct IDs.
type WordRecord struct {
	ID           WordID
	Label        string
	Alphagram    string
	IsPalindrome bool
	Language     LanguageID
	CreatedAt    time.Time
}

// AlphagramEntry is a signature and the ids of every word sharing it.
// Members is sorted ascending.
type AlphagramEntry struct {
	Signature string
	Members   []WordID
}

// Contains reports whether id is a member of the entry.
func (e AlphagramEntry) Contains(id WordID) bool {
	_, found := slices.BinarySearch(e.Members, id)
	return found
}

// LanguageTag is an optional language a word belongs to. Labels are unique.
type LanguageTag struct {
	ID        LanguageID
	Label     string
	CreatedAt time.Time
}
