package db

import "time"

// Dictionary records a word list file that has been loaded.
type Dictionary struct {
	ID          int64
	Path        string
	Fingerprint string
	WordCount   int
	LoadedAt    time.Time
}
