package ingest

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/japaniel/wordgram/pkg/db"
	"github.com/japaniel/wordgram/pkg/dictionary"
	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/normalize"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Result summarizes one ingestion run.
type Result struct {
	Path        string
	Fingerprint string
	Inserted    int
	Skipped     int
	// AlreadyLoaded is set when IngestFile found the file's fingerprint in
	// the database and did nothing.
	AlreadyLoaded bool
	Elapsed       time.Duration
}

// Ingester loads word lists into a store and, when DB is set, persists every
// inserted record. When persisting, the store must already hold the
// database's contents (see db.LoadStore) so new ids do not collide.
type Ingester struct {
	Store *lexicon.Store
	DB    *sql.DB

	BatchSize     int
	FlushInterval time.Duration
	Workers       int
	// DefaultLanguage, when set, tags every word loaded without one.
	DefaultLanguage string

	Logger zerolog.Logger
	// OnProgress is called with the running insert count every BatchSize
	// words and once at the end.
	OnProgress func(count int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester. conn may be nil for an in-memory load.
func NewIngester(store *lexicon.Store, conn *sql.DB) *Ingester {
	return &Ingester{
		Store:         store,
		DB:            conn,
		BatchSize:     500,
		FlushInterval: 100 * time.Millisecond,
		Workers:       4,
		Logger:        zerolog.Nop(),
	}
}

// derivedLine is one normalized input line on its way to the store.
type derivedLine struct {
	Index   int
	Derived normalize.Derived
	Err     error
}

// resolveLanguage returns the id of DefaultLanguage, registering it in the
// database first when one is configured so both agree on the id.
func (ig *Ingester) resolveLanguage() (lexicon.LanguageID, error) {
	if ig.DefaultLanguage == "" {
		return 0, nil
	}
	langs := ig.Store.Languages()
	if ig.DB == nil {
		tag, err := langs.CreateOrGet(ig.DefaultLanguage)
		if err != nil {
			return 0, err
		}
		return tag.ID, nil
	}
	id, err := db.CreateOrGetLanguage(ig.DB, ig.DefaultLanguage)
	if err != nil {
		return 0, err
	}
	if _, ok := langs.Get(id); !ok {
		if err := langs.Restore(lexicon.LanguageTag{ID: id, Label: ig.DefaultLanguage, CreatedAt: time.Now()}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Ingest reads one word per line from r. Blank lines are skipped. Lines are
// normalized by the worker pool and inserted in input order by a single
// consumer, so ids follow line order.
func (ig *Ingester) Ingest(ctx context.Context, r io.Reader) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	lang, err := ig.resolveLanguage()
	if err != nil {
		return Result{}, fmt.Errorf("default language: %w", err)
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	results := make(chan derivedLine, workers*2)

	var bw *BatchWriter
	if ig.DB != nil {
		bw = NewBatchWriter(ig.DB, ig.BatchSize, ig.FlushInterval)
		bw.Logger = ig.Logger
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(ctx)

	type consumed struct {
		inserted, skipped int
		err               error
	}
	doneCh := make(chan consumed, 1)
	go func() {
		inserted, skipped, err := ig.consume(ctx, results, bw, lang)
		if err != nil {
			// Stop producers so they don't block on results.
			cancel()
		}
		doneCh <- consumed{inserted, skipped, err}
	}()

	var produceErr error
	produced := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
Loop:
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := produced
		produced++

		job := func(ctx context.Context) error {
			d, err := normalize.Derive(line)
			select {
			case results <- derivedLine{Index: idx, Derived: d, Err: err}:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == ErrPoolClosed {
				break Loop
			}
			produceErr = fmt.Errorf("submit line %d: %w", idx+1, err)
			cancel()
			break Loop
		}
	}
	if err := scanner.Err(); err != nil && produceErr == nil {
		produceErr = fmt.Errorf("read: %w", err)
		cancel()
	}

	// Every worker has either sent its result or given up once Close returns.
	wp.Close()
	close(results)
	c := <-doneCh

	err = produceErr
	if err == nil {
		err = c.err
	}
	if bw != nil {
		if berr := bw.Close(); berr != nil && err == nil {
			err = berr
		}
	}

	res := Result{Inserted: c.inserted, Skipped: c.skipped, Elapsed: time.Since(start)}
	if err != nil {
		return res, err
	}
	if ig.OnProgress != nil {
		ig.OnProgress(res.Inserted)
	}
	ig.Logger.Info().Int("count", res.Inserted).Int("skipped", res.Skipped).Dur("elapsed", res.Elapsed).Msg("ingest complete")
	return res, nil
}

// consume inserts results in index order, buffering any that arrive early.
func (ig *Ingester) consume(ctx context.Context, results <-chan derivedLine, bw *BatchWriter, lang lexicon.LanguageID) (inserted, skipped int, err error) {
	buffer := make(map[int]derivedLine)
	next := 0

	handle := func(item derivedLine) error {
		if item.Err != nil {
			if errors.Is(item.Err, normalize.ErrEmptyInput) {
				skipped++
				return nil
			}
			return fmt.Errorf("line %d: %w", item.Index+1, item.Err)
		}
		rec, err := ig.Store.InsertDerived(item.Derived, lang)
		if err != nil {
			return fmt.Errorf("line %d %q: %w", item.Index+1, item.Derived.Label, err)
		}
		if bw != nil {
			if err := bw.SubmitWord(rec); err != nil {
				return err
			}
		}
		inserted++
		if ig.OnProgress != nil && ig.BatchSize > 0 && inserted%ig.BatchSize == 0 {
			ig.OnProgress(inserted)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return inserted, skipped, ctx.Err()
		case res, ok := <-results:
			if !ok {
				return inserted, skipped, nil
			}
			buffer[res.Index] = res
			for {
				item, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				next++
				if err := handle(item); err != nil {
					return inserted, skipped, err
				}
			}
		}
	}
}

// IngestFile loads the word list at path (plain or .gz). With a database
// configured, a file whose fingerprint was already recorded is skipped and
// a successful load is recorded.
func (ig *Ingester) IngestFile(ctx context.Context, path string) (Result, error) {
	fp, err := dictionary.Fingerprint(path)
	if err != nil {
		return Result{Path: path}, err
	}
	if ig.DB != nil {
		loaded, err := db.DictionaryLoaded(ig.DB, fp)
		if err != nil {
			return Result{Path: path, Fingerprint: fp}, err
		}
		if loaded {
			ig.Logger.Info().Str("path", path).Str("fingerprint", fp).Msg("dictionary already loaded, skipping")
			return Result{Path: path, Fingerprint: fp, AlreadyLoaded: true}, nil
		}
	}

	rc, err := dictionary.Open(path)
	if err != nil {
		return Result{Path: path, Fingerprint: fp}, err
	}
	defer rc.Close()

	ig.Logger.Info().Str("path", path).Msg("loading dictionary")
	res, err := ig.Ingest(ctx, rc)
	res.Path, res.Fingerprint = path, fp
	if err != nil {
		return res, fmt.Errorf("ingest %s: %w", path, err)
	}
	if ig.DB != nil {
		if err := db.RecordDictionary(ig.DB, path, fp, res.Inserted); err != nil {
			return res, err
		}
	}
	return res, nil
}
