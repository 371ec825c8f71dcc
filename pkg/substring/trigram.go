package substring

import (
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/japaniel/wordgram/pkg/lexicon"
)

// TrigramIndex is an inverted index from rune trigrams to word ids. It keeps
// itself current by observing the store.
type TrigramIndex struct {
	store *lexicon.Store
	scan  *Scan

	mu      sync.RWMutex
	ascii   map[uint32][]lexicon.WordID // three ASCII bytes packed
	unicode map[string][]lexicon.WordID
	indexed map[lexicon.WordID]struct{}
}

// NewTrigramIndex builds an index over the current contents of store and
// subscribes it to later inserts.
func NewTrigramIndex(store *lexicon.Store) *TrigramIndex {
	ti := &TrigramIndex{store: store, scan: NewScan(store)}
	ti.reset()
	store.Observe(ti)
	ti.Rebuild()
	return ti
}

func (ti *TrigramIndex) reset() {
	ti.ascii = make(map[uint32][]lexicon.WordID)
	ti.unicode = make(map[string][]lexicon.WordID)
	ti.indexed = make(map[lexicon.WordID]struct{})
}

// Rebuild reindexes every record in the store from scratch.
func (ti *TrigramIndex) Rebuild() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.reset()
	for rec := range ti.store.All() {
		ti.addLocked(rec)
	}
}

// Observe indexes a freshly inserted record.
func (ti *TrigramIndex) Observe(rec lexicon.WordRecord) {
	ti.mu.Lock()
	ti.addLocked(rec)
	ti.mu.Unlock()
}

func (ti *TrigramIndex) addLocked(rec lexicon.WordRecord) {
	if _, ok := ti.indexed[rec.ID]; ok {
		return
	}
	ti.indexed[rec.ID] = struct{}{}
	packed, strs := trigrams(rec.Label)
	for _, k := range packed {
		ti.ascii[k] = append(ti.ascii[k], rec.ID)
	}
	for _, k := range strs {
		ti.unicode[k] = append(ti.unicode[k], rec.ID)
	}
}

// Len returns the number of distinct trigrams indexed.
func (ti *TrigramIndex) Len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.ascii) + len(ti.unicode)
}

// Contains intersects the posting lists of every trigram in substr and
// verifies each candidate. Patterns shorter than three runes are scanned.
func (ti *TrigramIndex) Contains(substr string) iter.Seq[lexicon.WordRecord] {
	pattern, ok := fold(substr)
	if !ok {
		return func(func(lexicon.WordRecord) bool) {}
	}
	if len([]rune(pattern)) < 3 {
		return ti.scan.Contains(pattern)
	}

	candidates := ti.candidates(pattern)
	return func(yield func(lexicon.WordRecord) bool) {
		for _, id := range candidates {
			rec, ok := ti.store.Get(id)
			if !ok || !strings.Contains(rec.Label, pattern) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

func (ti *TrigramIndex) candidates(pattern string) []lexicon.WordID {
	packed, strs := trigrams(pattern)

	ti.mu.RLock()
	lists := make([][]lexicon.WordID, 0, len(packed)+len(strs))
	for _, k := range packed {
		lists = append(lists, ti.ascii[k])
	}
	for _, k := range strs {
		lists = append(lists, ti.unicode[k])
	}
	ti.mu.RUnlock()

	slices.SortFunc(lists, func(a, b []lexicon.WordID) int { return len(a) - len(b) })
	if len(lists) == 0 || len(lists[0]) == 0 {
		return nil
	}

	// Posting lists never contain an id twice, so a candidate seen in every
	// list has a count equal to len(lists).
	counts := make(map[lexicon.WordID]int, len(lists[0]))
	for _, id := range lists[0] {
		counts[id] = 1
	}
	for i, list := range lists[1:] {
		for _, id := range list {
			if c, ok := counts[id]; ok && c == i+1 {
				counts[id] = c + 1
			}
		}
	}

	out := make([]lexicon.WordID, 0, len(counts))
	for id, c := range counts {
		if c == len(lists) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// trigrams returns the distinct rune trigrams of s. Trigrams made of three
// ASCII runes come back packed into a uint32; the rest as strings.
func trigrams(s string) ([]uint32, []string) {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil, nil
	}
	var packed []uint32
	var strs []string
	seenPacked := make(map[uint32]struct{})
	seenStr := make(map[string]struct{})
	for i := 0; i+3 <= len(runes); i++ {
		a, b, c := runes[i], runes[i+1], runes[i+2]
		if a < 0x80 && b < 0x80 && c < 0x80 {
			k := uint32(a)<<16 | uint32(b)<<8 | uint32(c)
			if _, ok := seenPacked[k]; !ok {
				seenPacked[k] = struct{}{}
				packed = append(packed, k)
			}
			continue
		}
		k := string(runes[i : i+3])
		if _, ok := seenStr[k]; !ok {
			seenStr[k] = struct{}{}
			strs = append(strs, k)
		}
	}
	return packed, strs
}
