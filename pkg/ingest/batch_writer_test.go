package ingest

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	wdb "github.com/japaniel/wordgram/pkg/db"
	"github.com/japaniel/wordgram/pkg/lexicon"
)

func TestBatchWriterCommitsWords(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	bw := NewBatchWriter(conn, 2, 0)
	words := []lexicon.WordRecord{
		{ID: 1, Label: "tin", Alphagram: "int"},
		{ID: 2, Label: "nit", Alphagram: "int"},
		{ID: 3, Label: "ten", Alphagram: "ent"},
	}
	for _, rec := range words {
		if err := bw.SubmitWord(rec); err != nil {
			t.Fatalf("SubmitWord(%q): %v", rec.Label, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- bw.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Close")
	}

	n, err := wdb.CountWords(conn)
	if err != nil {
		t.Fatalf("CountWords: %v", err)
	}
	if n != 3 || bw.Committed() != 3 {
		t.Fatalf("expected 3 rows and 3 committed writes, got %d rows and %d committed", n, bw.Committed())
	}

	members, err := wdb.WordsByAlphagram(conn, "int")
	if err != nil {
		t.Fatalf("WordsByAlphagram: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected tin and nit under int, got %v", members)
	}
}

func TestBatchWriterRollsBackFailedBatch(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	bw := NewBatchWriter(conn, 2, 0)
	var reported []error
	var mu sync.Mutex
	bw.OnError = func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	// The second write fails, so the first must not survive either.
	bw.SubmitWord(lexicon.WordRecord{ID: 1, Label: "tin", Alphagram: "int"})
	bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return errors.New("disk on fire")
	})

	err := bw.Close()
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("expected Close to return the batch error, got %v", err)
	}
	if len(reported) != 1 {
		t.Fatalf("expected one OnError call, got %d", len(reported))
	}

	n, err := wdb.CountWords(conn)
	if err != nil {
		t.Fatalf("CountWords: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the batch to roll back, found %d rows", n)
	}
	if bw.Committed() != 0 {
		t.Fatalf("expected nothing committed, got %d", bw.Committed())
	}
}

func TestBatchWriterFlushesWhenFull(t *testing.T) {
	bw := NewBatchWriter(nil, 5, 0)
	var calls atomic.Int32
	for i := 0; i < 12; i++ {
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			calls.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if calls.Load() != 12 {
		t.Fatalf("expected 12 calls, got %d", calls.Load())
	}
}

func TestBatchWriterFlushesOnTimer(t *testing.T) {
	bw := NewBatchWriter(nil, 10, 20*time.Millisecond)
	defer bw.Close()

	ran := make(chan struct{})
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		close(ran)
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected the timer to flush a partial batch")
	}
}

func TestBatchWriterRejectsSubmitAfterClose(t *testing.T) {
	bw := NewBatchWriter(nil, 2, 0)
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bw.SubmitWord(lexicon.WordRecord{ID: 1, Label: "tin", Alphagram: "int"}); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed, got %v", err)
	}
	if err := bw.Close(); err != ErrBatchWriterClosed {
		t.Fatalf("expected second Close to report ErrBatchWriterClosed, got %v", err)
	}
}

func TestBatchWriterDropsBatchOnCancel(t *testing.T) {
	// One slow batch occupies the committer and two more fill the queue, so
	// the fourth hand-off has nowhere to go once the writer is cancelled.
	bw := NewBatchWriter(nil, 1, 0)
	defer bw.Close()
	dropped := make(chan error, 1)
	bw.OnError = func(err error) { dropped <- err }

	release := make(chan struct{})
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	bw.cancel()
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	close(release)

	select {
	case err := <-dropped:
		if !strings.Contains(err.Error(), "dropping batch") {
			t.Fatalf("unexpected OnError value: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected OnError when a batch is dropped")
	}
}
