package db

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/wordgram/pkg/lexicon"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// persistAll inserts words into a fresh store and writes every record.
func persistAll(t *testing.T, db DBExecutor, words ...string) *lexicon.Store {
	t.Helper()
	store := lexicon.NewStore()
	for _, w := range words {
		rec, err := store.Insert(w, 0)
		if err != nil {
			t.Fatalf("insert %q: %v", w, err)
		}
		if err := InsertWord(db, rec); err != nil {
			t.Fatalf("persist %q: %v", w, err)
		}
	}
	return store
}

func TestCreateOrGetLanguage(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id1, err := CreateOrGetLanguage(db, "English")
	if err != nil {
		t.Fatalf("create language: %v", err)
	}
	id2, err := CreateOrGetLanguage(db, " english ")
	if err != nil {
		t.Fatalf("get language: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}
	if _, err := CreateOrGetLanguage(db, "  "); err == nil {
		t.Fatalf("expected error for blank label")
	}
}

func TestCreateOrGetAlphagram(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id1, err := CreateOrGetAlphagram(db, "eilnst")
	if err != nil {
		t.Fatalf("create alphagram: %v", err)
	}
	id2, err := CreateOrGetAlphagram(db, "eilnst")
	if err != nil {
		t.Fatalf("get alphagram: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same alphagram id, got %d and %d", id1, id2)
	}
	if _, err := CreateOrGetAlphagram(db, "tin"); !errors.Is(err, lexicon.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for unsorted key, got %v", err)
	}
}

func TestWordLookups(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	persistAll(t, db, "listen", "silent", "tin", "Listen")

	homographs, err := WordsByLabel(db, "LISTEN")
	if err != nil {
		t.Fatalf("words by label: %v", err)
	}
	if len(homographs) != 2 || homographs[0].ID != 1 || homographs[1].ID != 4 {
		t.Fatalf("unexpected homographs: %+v", homographs)
	}
	if homographs[0].Alphagram != "eilnst" {
		t.Fatalf("expected alphagram eilnst, got %q", homographs[0].Alphagram)
	}

	if _, err := WordsByLabel(db, "apple"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	byKey, err := WordsByAlphagram(db, "eilnst")
	if err != nil {
		t.Fatalf("words by alphagram: %v", err)
	}
	if len(byKey) != 3 || byKey[0].ID != 1 || byKey[1].ID != 2 || byKey[2].ID != 4 {
		t.Fatalf("expected words 1, 2 and 4 under eilnst, got %v", byKey)
	}
	if _, err := WordsByAlphagram(db, "xyz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}

	n, err := CountWords(db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 words, got %d", n)
	}
}

func TestInsertWordDuplicateID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	rec := lexicon.WordRecord{ID: 1, Label: "tin", Alphagram: "int"}
	if err := InsertWord(db, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertWord(db, rec); err == nil {
		t.Fatalf("expected error on duplicate id")
	}
	if err := InsertWord(db, lexicon.WordRecord{Label: "nit", Alphagram: "int"}); err == nil {
		t.Fatalf("expected error for zero id")
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	langID, err := CreateOrGetLanguage(db, "english")
	if err != nil {
		t.Fatalf("language: %v", err)
	}
	src := lexicon.NewStore()
	if err := src.Languages().Restore(lexicon.LanguageTag{ID: langID, Label: "english"}); err != nil {
		t.Fatalf("restore language: %v", err)
	}
	for _, w := range []string{"listen", "silent", "enlist", "tinsel", "inlets", "tin", "level"} {
		rec, err := src.Insert(w, langID)
		if err != nil {
			t.Fatalf("insert %q: %v", w, err)
		}
		if err := InsertWord(db, rec); err != nil {
			t.Fatalf("persist %q: %v", w, err)
		}
	}

	dst := lexicon.NewStore()
	n, err := LoadStore(db, dst)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if n != src.Len() || dst.Len() != src.Len() {
		t.Fatalf("expected %d words, loaded %d (store has %d)", src.Len(), n, dst.Len())
	}

	for want := range src.All() {
		got, ok := dst.Get(want.ID)
		if !ok {
			t.Fatalf("word %d missing after load", want.ID)
		}
		if got.Label != want.Label || got.Alphagram != want.Alphagram || got.IsPalindrome != want.IsPalindrome || got.Language != want.Language {
			t.Fatalf("word %d mismatch: got %+v want %+v", want.ID, got, want)
		}
	}

	anagrams, err := dst.AnagramsOf(1)
	if err != nil {
		t.Fatalf("anagrams: %v", err)
	}
	if len(anagrams) != 4 {
		t.Fatalf("expected 4 anagrams of listen, got %d", len(anagrams))
	}

	next, err := dst.Insert("nit", 0)
	if err != nil {
		t.Fatalf("insert after load: %v", err)
	}
	if next.ID != 8 {
		t.Fatalf("expected next id 8, got %d", next.ID)
	}
	if tag, ok := dst.Languages().ByLabel("english"); !ok || tag.ID != langID {
		t.Fatalf("language not restored: %+v %v", tag, ok)
	}
}

func TestLoadStoreMissingAlphagram(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO words (id, label, alphagram_id, is_palindrome) VALUES (1, 'tin', 99, 0)`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := LoadStore(db, lexicon.NewStore())
	if !errors.Is(err, lexicon.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestSetWordLanguage(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	persistAll(t, db, "tin")
	langID, err := CreateOrGetLanguage(db, "english")
	if err != nil {
		t.Fatalf("language: %v", err)
	}
	if err := SetWordLanguage(db, 1, langID); err != nil {
		t.Fatalf("set language: %v", err)
	}
	words, err := WordsByLabel(db, "tin")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if words[0].Language != langID {
		t.Fatalf("expected language %d, got %d", langID, words[0].Language)
	}
	if err := SetWordLanguage(db, 42, langID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDictionaryTracking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	loaded, err := DictionaryLoaded(db, "abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if loaded {
		t.Fatalf("expected fingerprint to be unknown")
	}
	if err := RecordDictionary(db, "words.txt", "abc", 3); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := RecordDictionary(db, "copy.txt", "abc", 3); err != nil {
		t.Fatalf("record again: %v", err)
	}
	loaded, err = DictionaryLoaded(db, "abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !loaded {
		t.Fatalf("expected fingerprint to be recorded")
	}

	dicts, err := Dictionaries(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dicts) != 1 || dicts[0].Path != "words.txt" || dicts[0].WordCount != 3 {
		t.Fatalf("unexpected dictionaries: %+v", dicts)
	}
}
