package ingest

import (
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/wordgram/pkg/db"
	"github.com/japaniel/wordgram/pkg/lexicon"
)

func setupDB(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if err := db.InitDB(conn); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	return conn
}

const scenario = "listen\nsilent\n\n  enlist \ntinsel\ninlets\ntin\n"

func TestIngestPreservesLineOrder(t *testing.T) {
	store := lexicon.NewStore()
	ingester := NewIngester(store, nil)
	ingester.Workers = 8
	ingester.BatchSize = 2

	var progress []int
	var mu sync.Mutex
	ingester.OnProgress = func(n int) {
		mu.Lock()
		progress = append(progress, n)
		mu.Unlock()
	}

	res, err := ingester.Ingest(context.Background(), strings.NewReader(scenario))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Inserted != 6 {
		t.Fatalf("expected 6 inserted words, got %d", res.Inserted)
	}

	want := []string{"listen", "silent", "enlist", "tinsel", "inlets", "tin"}
	for i, label := range want {
		rec, ok := store.Get(lexicon.WordID(i + 1))
		if !ok || rec.Label != label {
			t.Fatalf("word %d: expected %q, got %+v", i+1, label, rec)
		}
	}

	wantProgress := []int{2, 4, 6, 6}
	if len(progress) != len(wantProgress) {
		t.Fatalf("expected progress %v, got %v", wantProgress, progress)
	}
	for i := range wantProgress {
		if progress[i] != wantProgress[i] {
			t.Fatalf("expected progress %v, got %v", wantProgress, progress)
		}
	}
}

func TestIngestPersists(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	store := lexicon.NewStore()
	ingester := NewIngester(store, conn)
	ingester.BatchSize = 2
	ingester.DefaultLanguage = "English"

	if _, err := ingester.Ingest(context.Background(), strings.NewReader(scenario)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	n, err := db.CountWords(conn)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 persisted words, got %d", n)
	}

	hydrated := lexicon.NewStore()
	if _, err := db.LoadStore(conn, hydrated); err != nil {
		t.Fatalf("load store: %v", err)
	}
	tag, ok := hydrated.Languages().ByLabel("english")
	if !ok {
		t.Fatalf("default language not persisted")
	}
	for rec := range store.All() {
		got, ok := hydrated.Get(rec.ID)
		if !ok || got.Label != rec.Label || got.Language != tag.ID {
			t.Fatalf("word %d: expected %q in %d, got %+v", rec.ID, rec.Label, tag.ID, got)
		}
	}
}

func TestIngestWithoutDefaultLanguageLeavesWordsUntagged(t *testing.T) {
	store := lexicon.NewStore()
	if _, err := store.Languages().CreateOrGet("english"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewIngester(store, nil).Ingest(context.Background(), strings.NewReader("tin\n")); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	rec, _ := store.Get(1)
	if rec.Language != 0 {
		t.Fatalf("expected no language, got %d", rec.Language)
	}
}

func TestIngestFileSkipsKnownFingerprint(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	path := filepath.Join(t.TempDir(), "words.txt.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	zw.Write([]byte(scenario))
	zw.Close()
	f.Close()

	store := lexicon.NewStore()
	ingester := NewIngester(store, conn)

	first, err := ingester.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first.AlreadyLoaded || first.Inserted != 6 || first.Fingerprint == "" {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := ingester.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !second.AlreadyLoaded || second.Inserted != 0 {
		t.Fatalf("expected second load to be skipped, got %+v", second)
	}
	if store.Len() != 6 {
		t.Fatalf("expected store to keep 6 words, got %d", store.Len())
	}
}

func TestIngestContextCancel(t *testing.T) {
	store := lexicon.NewStore()
	ingester := NewIngester(store, nil)
	ingester.BatchSize = 10

	// Create a context that is ALREADY canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ingester.Ingest(ctx, strings.NewReader(strings.Repeat("tin\n", 100)))
	if res.Inserted != 0 {
		t.Errorf("Expected 0 inserted words with cancelled context, got %d", res.Inserted)
	}
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled error, got %v", err)
	}
}

func TestIngestStopsOnPersistError(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	// A row already holding id 1 makes the first batch fail.
	if err := db.InsertWord(conn, lexicon.WordRecord{ID: 1, Label: "nit", Alphagram: "int"}); err != nil {
		t.Fatal(err)
	}

	ingester := NewIngester(lexicon.NewStore(), conn)
	ingester.BatchSize = 1
	if _, err := ingester.Ingest(context.Background(), strings.NewReader("tin\n")); err == nil {
		t.Fatalf("expected persist error")
	}
}

// rejectingPool fails every submission.
type rejectingPool struct{}

func (rejectingPool) Start(ctx context.Context)                    {}
func (rejectingPool) Submit(job Job) error                         { return errors.New("queue rejected job") }
func (rejectingPool) SubmitCtx(ctx context.Context, job Job) error { return errors.New("queue rejected job") }
func (rejectingPool) Close()                                       {}

func TestIngestReturnsSubmitError(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	store := lexicon.NewStore()
	ig := NewIngester(store, conn)
	ig.PoolFactory = func(workers, queue int) WorkerPoolInterface { return rejectingPool{} }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ig.Ingest(ctx, strings.NewReader(scenario))
	if err == nil || !strings.Contains(err.Error(), "queue rejected job") {
		t.Fatalf("expected the submit error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing inserted, got %d words", store.Len())
	}
}
