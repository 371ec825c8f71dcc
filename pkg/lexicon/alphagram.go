package lexicon

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/japaniel/wordgram/pkg/normalize"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 64

type alphagramShard struct {
	mu      sync.RWMutex
	entries map[string]map[WordID]struct{}
}

// AlphagramIndex maps a signature to the set of word ids sharing it.
//
// Keys are spread over shards by xxhash; each shard has its own lock, so
// check-and-create for a key and member-set writes are atomic per key while
// unrelated keys do not contend.
type AlphagramIndex struct {
	shards []*alphagramShard
	count  atomic.Int64
}

// NewAlphagramIndex creates an index with the given number of shards.
func NewAlphagramIndex(shards int) *AlphagramIndex {
	if shards <= 0 {
		shards = DefaultShards
	}
	ix := &AlphagramIndex{shards: make([]*alphagramShard, shards)}
	for i := range ix.shards {
		ix.shards[i] = &alphagramShard{entries: make(map[string]map[WordID]struct{})}
	}
	return ix
}

func (ix *AlphagramIndex) shardFor(key string) *alphagramShard {
	return ix.shards[xxhash.Sum64String(key)%uint64(len(ix.shards))]
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if !normalize.IsSorted(key) {
		return fmt.Errorf("%w: %q is not sorted", ErrInvalidKey, key)
	}
	return nil
}

func snapshotEntry(key string, members map[WordID]struct{}) AlphagramEntry {
	ids := make([]WordID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return AlphagramEntry{Signature: key, Members: ids}
}

// EntryFor returns a copy of the entry for key, if present.
func (ix *AlphagramIndex) EntryFor(key string) (AlphagramEntry, bool) {
	sh := ix.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	members, ok := sh.entries[key]
	if !ok {
		return AlphagramEntry{}, false
	}
	return snapshotEntry(key, members), true
}

// GetOrCreate returns the entry for key, creating an empty one if needed.
func (ix *AlphagramIndex) GetOrCreate(key string) (AlphagramEntry, error) {
	if err := validateKey(key); err != nil {
		return AlphagramEntry{}, err
	}
	sh := ix.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	members, ok := sh.entries[key]
	if !ok {
		members = make(map[WordID]struct{}, 1)
		sh.entries[key] = members
		ix.count.Add(1)
	}
	return snapshotEntry(key, members), nil
}

// Register adds id to the entry for key. Registering the same id twice is a
// no-op. The entry must already exist.
func (ix *AlphagramIndex) Register(key string, id WordID) error {
	sh := ix.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	members, ok := sh.entries[key]
	if !ok {
		return &IntegrityError{Op: "register", Key: key, WordID: id, Err: fmt.Errorf("no entry for signature")}
	}
	members[id] = struct{}{}
	return nil
}

// Siblings returns the members of key other than id, ascending. The entry
// must exist and contain id.
func (ix *AlphagramIndex) Siblings(key string, id WordID) ([]WordID, error) {
	sh := ix.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	members, ok := sh.entries[key]
	if !ok {
		return nil, &IntegrityError{Op: "siblings", Key: key, WordID: id, Err: fmt.Errorf("no entry for signature")}
	}
	if _, ok := members[id]; !ok {
		return nil, &IntegrityError{Op: "siblings", Key: key, WordID: id, Err: fmt.Errorf("word not registered under its signature")}
	}
	out := make([]WordID, 0, len(members)-1)
	for m := range members {
		if m != id {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Shards returns the shard count.
func (ix *AlphagramIndex) Shards() int { return len(ix.shards) }

// Len returns the number of distinct signatures.
func (ix *AlphagramIndex) Len() int {
	return int(ix.count.Load())
}
