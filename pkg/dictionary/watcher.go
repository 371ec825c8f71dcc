package dictionary

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange when the contents of a dictionary file change.
// Bursts of events are debounced, and a change that leaves the xxhash
// fingerprint as it was is ignored.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnChange func(ctx context.Context, path string) error
	Logger   zerolog.Logger
}

// NewWatcher returns a watcher for path with the default debounce.
func NewWatcher(path string, onChange func(ctx context.Context, path string) error) *Watcher {
	return &Watcher{
		Path:     path,
		Debounce: DefaultDebounce,
		OnChange: onChange,
		Logger:   zerolog.Nop(),
	}
}

// Run watches until ctx is done. The file's directory is watched rather
// than the file, so editors that replace the file by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	target, err := filepath.Abs(w.Path)
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	last, _ := Fingerprint(target)
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.Logger.Info().Str("path", target).Msg("watching dictionary")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn().Err(err).Str("path", target).Msg("watcher error")

		case <-fire:
			fire = nil
			fp, err := Fingerprint(target)
			if err != nil {
				w.Logger.Warn().Err(err).Str("path", target).Msg("dictionary unreadable")
				continue
			}
			if fp == last {
				w.Logger.Debug().Str("path", target).Msg("dictionary unchanged")
				continue
			}
			last = fp
			if err := w.OnChange(ctx, w.Path); err != nil {
				w.Logger.Error().Err(err).Str("path", target).Msg("dictionary reload failed")
			}
		}
	}
}
