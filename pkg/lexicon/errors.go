package lexicon

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity matches every *IntegrityError via errors.Is.
	ErrIntegrity = errors.New("lexicon: integrity violation")
	// ErrInvalidKey is returned for empty or unsorted alphagram signatures.
	ErrInvalidKey = errors.New("lexicon: invalid alphagram key")
	// ErrUnknownWord is returned when a word id is not in the store.
	ErrUnknownWord = errors.New("lexicon: unknown word")
	// ErrUnknownLanguage is returned when a language id is not registered.
	ErrUnknownLanguage = errors.New("lexicon: unknown language")
	// ErrDuplicateID is returned when restoring a record whose id is taken.
	ErrDuplicateID = errors.New("lexicon: duplicate word id")
)

// IntegrityError reports a broken word/alphagram link (a record whose key
// has no entry, or an entry member that does not resolve to a record) or a
// record whose derived fields disagree with its label. It indicates an
// ingestion bug and is never recovered from.
type IntegrityError struct {
	Op     string
	Key    string
	WordID WordID
	Err    error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("lexicon: integrity violation in %s (key %q, word %d)", e.Op, e.Key, e.WordID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
