package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/japaniel/wordgram/pkg/db"
	"github.com/japaniel/wordgram/pkg/lexicon"
)

// WriteFunc performs database writes inside a batch transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter groups writes into transactions. A batch is handed to a single
// committer goroutine when it reaches the batch size or when the flush
// interval elapses, whichever comes first.
type BatchWriter struct {
	mu      sync.Mutex
	pending []WriteFunc
	size    int
	ticker  *time.Ticker
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	batches chan []WriteFunc
	db      *sql.DB
	OnError func(error)
	Logger  zerolog.Logger

	committed atomic.Int64

	errMu    sync.Mutex
	firstErr error
}

// NewBatchWriter returns a running writer. flushInterval 0 disables the
// timer. A nil conn runs callbacks with a nil transaction.
func NewBatchWriter(conn *sql.DB, batchSize int, flushInterval time.Duration) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		pending: make([]WriteFunc, 0, batchSize),
		size:    batchSize,
		ctx:     ctx,
		cancel:  cancel,
		batches: make(chan []WriteFunc, 2),
		db:      conn,
		Logger:  zerolog.Nop(),
	}

	bw.wg.Add(1)
	go bw.commitLoop()

	if flushInterval > 0 {
		bw.ticker = time.NewTicker(flushInterval)
		bw.wg.Add(1)
		go bw.tickLoop()
	}
	return bw
}

// Submit queues w for the current batch.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.pending = append(bw.pending, w)
	if len(bw.pending) >= bw.size {
		bw.handOffLocked()
	}
	return nil
}

// SubmitWord queues the insert of a store-assigned word record.
func (bw *BatchWriter) SubmitWord(rec lexicon.WordRecord) error {
	return bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return db.InsertWord(tx, rec)
	})
}

// Committed is the number of writes committed so far.
func (bw *BatchWriter) Committed() int {
	return int(bw.committed.Load())
}

func (bw *BatchWriter) fail(err error) {
	bw.errMu.Lock()
	if bw.firstErr == nil {
		bw.firstErr = err
	}
	bw.errMu.Unlock()
	bw.Logger.Error().Err(err).Msg("batch write failed")
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

// handOffLocked moves pending writes to the committer. bw.mu must be held.
// It blocks while the committer is behind.
func (bw *BatchWriter) handOffLocked() {
	if len(bw.pending) == 0 {
		return
	}
	batch := bw.pending
	bw.pending = make([]WriteFunc, 0, bw.size)

	select {
	case bw.batches <- batch:
	case <-bw.ctx.Done():
		bw.fail(fmt.Errorf("batch writer: dropping batch of %d items due to context cancellation", len(batch)))
	}
}

func (bw *BatchWriter) commitLoop() {
	defer bw.wg.Done()
	for batch := range bw.batches {
		if err := bw.commit(batch); err != nil {
			bw.fail(err)
			continue
		}
		total := bw.committed.Add(int64(len(batch)))
		bw.Logger.Debug().Int("count", len(batch)).Int64("total", total).Msg("batch committed")
	}
}

func (bw *BatchWriter) commit(batch []WriteFunc) error {
	// Not bw.ctx: batches handed off before Close must still commit.
	ctx := context.Background()

	if bw.db == nil {
		for _, w := range batch {
			if err := w(ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	for i, w := range batch {
		if err := w(ctx, tx); err != nil {
			return fmt.Errorf("batch item %d of %d: %w", i+1, len(batch), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch (%d items): %w", len(batch), err)
	}
	return nil
}

func (bw *BatchWriter) tickLoop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.ticker.C:
			bw.mu.Lock()
			bw.handOffLocked()
			bw.mu.Unlock()
		}
	}
}

// Close rejects further submissions, commits everything pending and
// returns the first error the writer saw.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	if bw.ticker != nil {
		bw.ticker.Stop()
	}
	bw.handOffLocked()
	bw.mu.Unlock()

	bw.cancel()
	close(bw.batches)
	bw.wg.Wait()

	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.firstErr
}

var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
