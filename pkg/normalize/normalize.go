// Package normalize canonicalizes raw dictionary words and derives the
// signatures the lexicon indexes them by.
package normalize

import (
	"errors"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyInput is returned when a raw word canonicalizes to the empty string.
var ErrEmptyInput = errors.New("normalize: empty input")

// Derived holds everything computed from a raw label before it is stored.
type Derived struct {
	Label        string
	Alphagram    string
	IsPalindrome bool
}

// Canonicalize composes the input to NFC, lowercases it and strips
// surrounding whitespace.
func Canonicalize(raw string) (string, error) {
	s := strings.TrimSpace(strings.ToLower(norm.NFC.String(raw)))
	if s == "" {
		return "", ErrEmptyInput
	}
	return s, nil
}

// AlphagramKey returns the runes of canonical sorted by code point.
func AlphagramKey(canonical string) string {
	runes := []rune(canonical)
	slices.Sort(runes)
	return string(runes)
}

// IsPalindrome reports whether canonical reads the same reversed.
func IsPalindrome(canonical string) bool {
	runes := []rune(canonical)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		if runes[i] != runes[j] {
			return false
		}
	}
	return true
}

// IsSorted reports whether key is already in alphagram order.
func IsSorted(key string) bool {
	var prev rune
	for i, r := range key {
		if i > 0 && r < prev {
			return false
		}
		prev = r
	}
	return true
}

// Derive canonicalizes raw and computes its alphagram and palindrome flag.
func Derive(raw string) (Derived, error) {
	label, err := Canonicalize(raw)
	if err != nil {
		return Derived{}, err
	}
	return Derived{
		Label:        label,
		Alphagram:    AlphagramKey(label),
		IsPalindrome: IsPalindrome(label),
	}, nil
}
