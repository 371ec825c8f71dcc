package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/normalize"
)

// ErrNotFound is returned by lookups that match no rows.
var ErrNotFound = errors.New("db: not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// upsertLabel inserts label into table or returns the id of the existing row.
func upsertLabel(db DBExecutor, table, label string) (int64, error) {
	const maxRetries = 3

	query := fmt.Sprintf(`INSERT INTO %s (label) VALUES (?)
		ON CONFLICT(label) DO UPDATE SET label = excluded.label
		RETURNING id`, table)

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRow(query, label).Scan(&id)
		if err == nil {
			return id, nil
		}
		// Another writer may have raced us between the conflict check and
		// the insert; the next attempt takes the update path.
		if isUniqueConstraintErr(err) {
			continue
		}
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}
	return 0, fmt.Errorf("could not create or get %s %q after %d retries", table, label, maxRetries)
}

// CreateOrGetLanguage returns the id of the language labelled label,
// inserting it if needed.
func CreateOrGetLanguage(db DBExecutor, label string) (lexicon.LanguageID, error) {
	canonical, err := normalize.Canonicalize(label)
	if err != nil {
		return 0, fmt.Errorf("language label: %w", err)
	}
	id, err := upsertLabel(db, "languages", canonical)
	return lexicon.LanguageID(id), err
}

// CreateOrGetAlphagram returns the row id of the alphagram signature key,
// inserting it if needed.
func CreateOrGetAlphagram(db DBExecutor, key string) (int64, error) {
	if key == "" || !normalize.IsSorted(key) {
		return 0, fmt.Errorf("alphagram %q: %w", key, lexicon.ErrInvalidKey)
	}
	return upsertLabel(db, "alphagrams", key)
}

// nullableLanguage returns nil for 0 (meaning no language) else the value.
func nullableLanguage(id lexicon.LanguageID) interface{} {
	if id == 0 {
		return nil
	}
	return int64(id)
}

// InsertWord persists rec under its existing id, creating its alphagram row
// as needed.
func InsertWord(db DBExecutor, rec lexicon.WordRecord) error {
	if rec.ID <= 0 {
		return fmt.Errorf("word id must be positive, got %d", rec.ID)
	}
	alphagramID, err := CreateOrGetAlphagram(db, rec.Alphagram)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = db.Exec(`INSERT INTO words (id, label, alphagram_id, language_id, is_palindrome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		int64(rec.ID), rec.Label, alphagramID, nullableLanguage(rec.Language), rec.IsPalindrome, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert word %d %q: %w", rec.ID, rec.Label, err)
	}
	return nil
}

// SetWordLanguage backfills a word's language.
func SetWordLanguage(db DBExecutor, id lexicon.WordID, lang lexicon.LanguageID) error {
	res, err := db.Exec(`UPDATE words SET language_id = ? WHERE id = ?`, nullableLanguage(lang), int64(id))
	if err != nil {
		return fmt.Errorf("set language of word %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("word %d: %w", id, ErrNotFound)
	}
	return nil
}

const selectWords = `SELECT w.id, w.label, a.label, w.is_palindrome, w.language_id, w.created_at
	FROM words w LEFT JOIN alphagrams a ON a.id = w.alphagram_id`

func scanWords(rows *sql.Rows) ([]lexicon.WordRecord, error) {
	defer rows.Close()
	var out []lexicon.WordRecord
	for rows.Next() {
		var (
			rec  lexicon.WordRecord
			id   int64
			key  sql.NullString
			lang sql.NullInt64
		)
		if err := rows.Scan(&id, &rec.Label, &key, &rec.IsPalindrome, &lang, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ID = lexicon.WordID(id)
		if !key.Valid {
			return nil, &lexicon.IntegrityError{Op: "load", WordID: rec.ID, Err: fmt.Errorf("word %q has no alphagram row", rec.Label)}
		}
		rec.Alphagram = key.String
		if lang.Valid {
			rec.Language = lexicon.LanguageID(lang.Int64)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WordsByLabel returns every stored homograph spelled label, in id order.
func WordsByLabel(db DBExecutor, label string) ([]lexicon.WordRecord, error) {
	canonical, err := normalize.Canonicalize(label)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := db.Query(selectWords+` WHERE w.label = ? ORDER BY w.id`, canonical)
	if err != nil {
		return nil, fmt.Errorf("words by label: %w", err)
	}
	out, err := scanWords(rows)
	if err != nil {
		return nil, fmt.Errorf("words by label: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// WordsByAlphagram returns the words filed under signature key, in id order.
func WordsByAlphagram(db DBExecutor, key string) ([]lexicon.WordRecord, error) {
	rows, err := db.Query(selectWords+` WHERE a.label = ? ORDER BY w.id`, key)
	if err != nil {
		return nil, fmt.Errorf("words by alphagram: %w", err)
	}
	out, err := scanWords(rows)
	if err != nil {
		return nil, fmt.Errorf("words by alphagram: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// CountWords returns the number of stored words.
func CountWords(db DBExecutor) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM words`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count words: %w", err)
	}
	return n, nil
}

// Languages returns every stored language, ordered by id.
func Languages(db DBExecutor) ([]lexicon.LanguageTag, error) {
	rows, err := db.Query(`SELECT id, label, created_at FROM languages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("languages: %w", err)
	}
	defer rows.Close()
	var out []lexicon.LanguageTag
	for rows.Next() {
		var tag lexicon.LanguageTag
		var id int64
		if err := rows.Scan(&id, &tag.Label, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tag.ID = lexicon.LanguageID(id)
		out = append(out, tag)
	}
	return out, rows.Err()
}

// LoadStore hydrates store with every language and word in the database.
// Words are restored in id order so the store assigns later ids after them.
func LoadStore(db DBExecutor, store *lexicon.Store) (int, error) {
	tags, err := Languages(db)
	if err != nil {
		return 0, err
	}
	for _, tag := range tags {
		if err := store.Languages().Restore(tag); err != nil {
			return 0, fmt.Errorf("restore language %d: %w", tag.ID, err)
		}
	}

	rows, err := db.Query(selectWords + ` ORDER BY w.id`)
	if err != nil {
		return 0, fmt.Errorf("load words: %w", err)
	}
	recs, err := scanWords(rows)
	if err != nil {
		return 0, fmt.Errorf("load words: %w", err)
	}
	for _, rec := range recs {
		if err := store.Restore(rec); err != nil {
			return 0, fmt.Errorf("load words: %w", err)
		}
	}
	return len(recs), nil
}

// DictionaryLoaded reports whether a file with fingerprint was loaded before.
func DictionaryLoaded(db DBExecutor, fingerprint string) (bool, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM dictionaries WHERE fingerprint = ?`, fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dictionary lookup: %w", err)
	}
	return true, nil
}

// RecordDictionary marks a file as loaded. Recording the same fingerprint
// twice keeps the first row.
func RecordDictionary(db DBExecutor, path, fingerprint string, wordCount int) error {
	_, err := db.Exec(`INSERT INTO dictionaries (path, fingerprint, word_count, loaded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`, path, fingerprint, wordCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record dictionary %s: %w", path, err)
	}
	return nil
}

// Dictionaries lists the loaded dictionary files, oldest first.
func Dictionaries(db DBExecutor) ([]Dictionary, error) {
	rows, err := db.Query(`SELECT id, path, fingerprint, word_count, loaded_at FROM dictionaries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("dictionaries: %w", err)
	}
	defer rows.Close()
	var out []Dictionary
	for rows.Next() {
		var d Dictionary
		if err := rows.Scan(&d.ID, &d.Path, &d.Fingerprint, &d.WordCount, &d.LoadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
