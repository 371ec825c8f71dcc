package dictionary

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Downloader fetches a word list when it is missing locally.
type Downloader struct {
	Client *http.Client
	Logger zerolog.Logger
}

// NewDownloader returns a downloader with a bounded HTTP client.
func NewDownloader() *Downloader {
	return &Downloader{
		Client: &http.Client{Timeout: 60 * time.Second},
		Logger: zerolog.Nop(),
	}
}

// EnsureDictionary checks if the dictionary exists at path. If not and url
// is set, it downloads url to path. A gzip download is stored decompressed
// unless path itself ends in .gz.
func (d *Downloader) EnsureDictionary(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		return fmt.Errorf("dictionary not found at %s and no download url given", path)
	}

	d.Logger.Info().Str("path", path).Str("url", url).Msg("dictionary missing, downloading")
	return d.download(ctx, url, path)
}

func (d *Downloader) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "wordgram-cli")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(url, ".gz") && !strings.HasSuffix(destPath, ".gz") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	// Only a complete download is renamed into place.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return err
	}
	d.Logger.Info().Str("path", destPath).Int64("bytes", n).Msg("dictionary downloaded")
	return nil
}
