package lexicon

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/japaniel/wordgram/pkg/normalize"
)

// Languages is the registry of language tags, unique by canonical label.
type Languages struct {
	mu      sync.RWMutex
	byID    map[LanguageID]LanguageTag
	byLabel map[string]LanguageID
	next    LanguageID
	now     func() time.Time
}

func newLanguages(now func() time.Time) *Languages {
	return &Languages{
		byID:    make(map[LanguageID]LanguageTag),
		byLabel: make(map[string]LanguageID),
		next:    1,
		now:     now,
	}
}

// CreateOrGet returns the tag for label, registering it if it is new.
func (l *Languages) CreateOrGet(label string) (LanguageTag, error) {
	canonical, err := normalize.Canonicalize(label)
	if err != nil {
		return LanguageTag{}, fmt.Errorf("language label: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.byLabel[canonical]; ok {
		return l.byID[id], nil
	}
	tag := LanguageTag{ID: l.next, Label: canonical, CreatedAt: l.now()}
	l.next++
	l.byID[tag.ID] = tag
	l.byLabel[canonical] = tag.ID
	return tag, nil
}

// Restore registers a tag loaded from persistence with its existing id.
func (l *Languages) Restore(tag LanguageTag) error {
	if tag.ID <= 0 {
		return fmt.Errorf("language id must be positive, got %d", tag.ID)
	}
	canonical, err := normalize.Canonicalize(tag.Label)
	if err != nil {
		return fmt.Errorf("language label: %w", err)
	}
	tag.Label = canonical
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byLabel[canonical]; ok && existing != tag.ID {
		return fmt.Errorf("language %q already registered as %d", canonical, existing)
	}
	l.byID[tag.ID] = tag
	l.byLabel[canonical] = tag.ID
	if tag.ID >= l.next {
		l.next = tag.ID + 1
	}
	return nil
}

// Get returns the tag with the given id.
func (l *Languages) Get(id LanguageID) (LanguageTag, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tag, ok := l.byID[id]
	return tag, ok
}

// ByLabel looks a tag up by label, case-insensitively.
func (l *Languages) ByLabel(label string) (LanguageTag, bool) {
	canonical, err := normalize.Canonicalize(label)
	if err != nil {
		return LanguageTag{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byLabel[canonical]
	if !ok {
		return LanguageTag{}, false
	}
	return l.byID[id], true
}

// All returns every tag ordered by label.
func (l *Languages) All() []LanguageTag {
	l.mu.RLock()
	out := make([]LanguageTag, 0, len(l.byID))
	for _, tag := range l.byID {
		out = append(out, tag)
	}
	l.mu.RUnlock()
	slices.SortFunc(out, func(a, b LanguageTag) int { return strings.Compare(a.Label, b.Label) })
	return out
}
