package lexicon

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/japaniel/wordgram/pkg/normalize"
)

// Observer is notified after every record enters the store.
type Observer interface {
	Observe(rec WordRecord)
}

// Option configures a Store.
type Option func(*Store)

// WithShards sets the alphagram index shard count.
func WithShards(n int) Option {
	return func(s *Store) { s.index = NewAlphagramIndex(n) }
}

// Store owns the word records and keeps the alphagram index in step with
// them. Records live in an arena slice addressed by id.
type Store struct {
	mu        sync.RWMutex
	records   []WordRecord
	pos       map[WordID]int
	byLabel   map[string][]WordID
	nextID    WordID
	observers []Observer

	// view is records sorted by (label, id), built on the first All and
	// kept sorted by later writes. Once handed to a reader it is shared
	// and the next write copies it instead of shifting it in place.
	view       []WordRecord
	viewShared atomic.Bool

	index *AlphagramIndex
	langs *Languages
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		pos:     make(map[WordID]int),
		byLabel: make(map[string][]WordID),
		nextID:  1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		s.index = NewAlphagramIndex(DefaultShards)
	}
	s.langs = newLanguages(s.now)
	return s
}

// Index exposes the alphagram index backing the store.
func (s *Store) Index() *AlphagramIndex { return s.index }

// Languages exposes the language registry.
func (s *Store) Languages() *Languages { return s.langs }

// Observe registers o for notification of future inserts.
func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Insert canonicalizes raw and stores it as a new record.
func (s *Store) Insert(raw string, lang LanguageID) (WordRecord, error) {
	d, err := normalize.Derive(raw)
	if err != nil {
		return WordRecord{}, err
	}
	return s.InsertDerived(d, lang)
}

// checkDerived reports an IntegrityError when the label is not canonical or
// a derived field disagrees with it.
func checkDerived(op string, id WordID, label, alphagram string, palindrome bool) error {
	if canonical, err := normalize.Canonicalize(label); err != nil || canonical != label {
		return &IntegrityError{Op: op, Key: alphagram, WordID: id, Err: fmt.Errorf("label %q is not canonical", label)}
	}
	if normalize.AlphagramKey(label) != alphagram {
		return &IntegrityError{Op: op, Key: alphagram, WordID: id, Err: fmt.Errorf("signature does not match label %q", label)}
	}
	if normalize.IsPalindrome(label) != palindrome {
		return &IntegrityError{Op: op, Key: alphagram, WordID: id, Err: fmt.Errorf("palindrome flag does not match label %q", label)}
	}
	return nil
}

// InsertDerived stores a word whose derived fields were already computed.
// The fields must agree with what Derive would produce for the label.
func (s *Store) InsertDerived(d normalize.Derived, lang LanguageID) (WordRecord, error) {
	if d.Label == "" {
		return WordRecord{}, normalize.ErrEmptyInput
	}
	if err := checkDerived("insert", 0, d.Label, d.Alphagram, d.IsPalindrome); err != nil {
		return WordRecord{}, err
	}
	if lang != 0 {
		if _, ok := s.langs.Get(lang); !ok {
			return WordRecord{}, fmt.Errorf("insert %q: %w: %d", d.Label, ErrUnknownLanguage, lang)
		}
	}
	if _, err := s.index.GetOrCreate(d.Alphagram); err != nil {
		return WordRecord{}, fmt.Errorf("insert %q: %w", d.Label, err)
	}

	s.mu.Lock()
	rec := WordRecord{
		ID:           s.nextID,
		Label:        d.Label,
		Alphagram:    d.Alphagram,
		IsPalindrome: d.IsPalindrome,
		Language:     lang,
		CreatedAt:    s.now(),
	}
	if err := s.index.Register(rec.Alphagram, rec.ID); err != nil {
		s.mu.Unlock()
		return WordRecord{}, err
	}
	s.nextID++
	s.appendLocked(rec)
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o.Observe(rec)
	}
	return rec, nil
}

// Restore adds a record that already has an id, typically one read back
// from persistence. Derived fields are checked against the label.
func (s *Store) Restore(rec WordRecord) error {
	if rec.ID <= 0 {
		return fmt.Errorf("restore: word id must be positive, got %d", rec.ID)
	}
	if rec.Label == "" {
		return fmt.Errorf("restore word %d: %w", rec.ID, normalize.ErrEmptyInput)
	}
	if err := checkDerived("restore", rec.ID, rec.Label, rec.Alphagram, rec.IsPalindrome); err != nil {
		return err
	}
	if rec.Language != 0 {
		if _, ok := s.langs.Get(rec.Language); !ok {
			return fmt.Errorf("restore word %d: %w: %d", rec.ID, ErrUnknownLanguage, rec.Language)
		}
	}
	if _, err := s.index.GetOrCreate(rec.Alphagram); err != nil {
		return fmt.Errorf("restore word %d: %w", rec.ID, err)
	}

	s.mu.Lock()
	if _, taken := s.pos[rec.ID]; taken {
		s.mu.Unlock()
		return fmt.Errorf("restore: %w: %d", ErrDuplicateID, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if err := s.index.Register(rec.Alphagram, rec.ID); err != nil {
		s.mu.Unlock()
		return err
	}
	if rec.ID >= s.nextID {
		s.nextID = rec.ID + 1
	}
	s.appendLocked(rec)
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o.Observe(rec)
	}
	return nil
}

// appendLocked assumes s.mu is held for writing.
func (s *Store) appendLocked(rec WordRecord) {
	s.pos[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	s.byLabel[rec.Label] = append(s.byLabel[rec.Label], rec.ID)
	if s.view == nil {
		return
	}
	i, _ := slices.BinarySearchFunc(s.view, rec, CompareByLabel)
	if s.viewShared.Swap(false) {
		// Clip forces Insert to allocate, leaving readers' snapshot intact.
		s.view = slices.Insert(slices.Clip(s.view), i, rec)
	} else {
		s.view = slices.Insert(s.view, i, rec)
	}
}

// SetLanguage backfills the language of an existing word.
func (s *Store) SetLanguage(id WordID, lang LanguageID) error {
	if lang != 0 {
		if _, ok := s.langs.Get(lang); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownLanguage, lang)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.pos[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWord, id)
	}
	s.records[i].Language = lang
	if s.view != nil {
		if j, found := slices.BinarySearchFunc(s.view, s.records[i], CompareByLabel); found {
			if s.viewShared.Swap(false) {
				s.view = slices.Clone(s.view)
			}
			s.view[j].Language = lang
		}
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(id WordID) (WordRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.pos[id]
	if !ok {
		return WordRecord{}, false
	}
	return s.records[i], true
}

// GetByLabel returns every homograph spelled label, in id order.
func (s *Store) GetByLabel(label string) []WordRecord {
	canonical, err := normalize.Canonicalize(label)
	if err != nil {
		return []WordRecord{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byLabel[canonical]
	out := make([]WordRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[s.pos[id]])
	}
	slices.SortFunc(out, func(a, b WordRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of stored words.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All yields every record ordered by label, then id. Each iteration walks a
// snapshot taken when it starts, so the sequence can be ranged repeatedly.
func (s *Store) All() iter.Seq[WordRecord] {
	return func(yield func(WordRecord) bool) {
		for _, rec := range s.sorted() {
			if !yield(rec) {
				return
			}
		}
	}
}

func (s *Store) sorted() []WordRecord {
	s.mu.RLock()
	view := s.view
	if view != nil {
		s.viewShared.Store(true)
	}
	s.mu.RUnlock()
	if view != nil {
		return view
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		view := slices.Clone(s.records)
		slices.SortFunc(view, CompareByLabel)
		s.view = view
	}
	s.viewShared.Store(true)
	return s.view
}

// CompareByLabel orders records by label, then id.
func CompareByLabel(a, b WordRecord) int {
	if c := strings.Compare(a.Label, b.Label); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// AnagramsOf returns every record sharing the subject's signature, subject
// excluded, in id order.
func (s *Store) AnagramsOf(id WordID) ([]WordRecord, error) {
	subject, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("anagrams of %d: %w", id, ErrUnknownWord)
	}
	ids, err := s.index.Siblings(subject.Alphagram, subject.ID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WordRecord, 0, len(ids))
	for _, sib := range ids {
		i, ok := s.pos[sib]
		if !ok {
			return nil, &IntegrityError{Op: "anagrams", Key: subject.Alphagram, WordID: sib, Err: ErrUnknownWord}
		}
		out = append(out, s.records[i])
	}
	return out, nil
}
