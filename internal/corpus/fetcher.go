package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// MaxBookSize is the largest response body accepted from a mirror (64MB)
	MaxBookSize = 64 * 1024 * 1024

	// UserAgent identifies downloads to the mirrors
	UserAgent = "ngram-viewer/1.0 (+https://github.com/sha1n/ngram-viewer)"
)

var (
	// ErrDownloadFailed indicates no mirror could provide the book
	ErrDownloadFailed = errors.New("download failed")

	// ErrInvalidBookID indicates a book id that cannot be used as a file name or URL segment
	ErrInvalidBookID = errors.New("invalid book id")
)

var bookIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Fetcher abstracts HTTP retrieval for testing.
type Fetcher interface {
	// Fetch returns the body of a successful GET request.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError reports a non-200 mirror response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTPFetcher downloads over HTTP, throttled by a shared rate limiter.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a fetcher allowing requestsPerSecond requests with the given burst.
func NewHTTPFetcher(timeout time.Duration, requestsPerSecond float64, burst int) *HTTPFetcher {
	if burst < 1 {
		burst = 1
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Fetch waits for the rate limiter and performs the request.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBookSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBookSize {
		return nil, fmt.Errorf("GET %s: response exceeds %d bytes", url, MaxBookSize)
	}
	return body, nil
}

// Download is the result of retrieving one book.
type Download struct {
	ID     string
	Path   string
	URL    string // empty when served from cache
	Data   []byte
	Cached bool
}

// Downloader resolves books to cached text files, downloading missing ones from the mirrors.
type Downloader struct {
	fetcher  Fetcher
	mirrors  []string
	booksDir string
}

// NewDownloader creates a downloader storing books under booksDir.
func NewDownloader(fetcher Fetcher, mirrors []string, booksDir string) *Downloader {
	return &Downloader{
		fetcher:  fetcher,
		mirrors:  mirrors,
		booksDir: booksDir,
	}
}

// BookPath returns the cache path of a book.
func (d *Downloader) BookPath(id string) string {
	return filepath.Join(d.booksDir, id+".txt")
}

// MirrorURLs expands the mirror templates for a book id.
func (d *Downloader) MirrorURLs(id string) []string {
	urls := make([]string, len(d.mirrors))
	for i, m := range d.mirrors {
		urls[i] = strings.ReplaceAll(m, "{id}", id)
	}
	return urls
}

// IsCached reports whether the book text is already on disk.
func (d *Downloader) IsCached(id string) bool {
	_, err := os.Stat(d.BookPath(id))
	return err == nil
}

// ReadCached reads a previously downloaded book.
func (d *Downloader) ReadCached(id string) ([]byte, error) {
	if !bookIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBookID, id)
	}
	return os.ReadFile(d.BookPath(id))
}

// Get returns the cached book, or downloads it by trying each mirror in order.
func (d *Downloader) Get(ctx context.Context, id string) (*Download, error) {
	if !bookIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBookID, id)
	}

	path := d.BookPath(id)
	if data, err := os.ReadFile(path); err == nil {
		return &Download{ID: id, Path: path, Data: data, Cached: true}, nil
	}

	var errs []error
	for _, url := range d.MirrorURLs(id) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Debug("Downloading book", "id", id, "url", url)
		data, err := d.fetcher.Fetch(ctx, url)
		if err == nil && IsBinary(data) {
			err = errors.New("response is binary")
		}
		if err != nil {
			slog.Debug("Mirror failed", "id", id, "url", url, "error", err)
			errs = append(errs, err)
			continue
		}

		if err := writeFileAtomic(path, data); err != nil {
			return nil, err
		}
		return &Download{ID: id, Path: path, URL: url, Data: data}, nil
	}

	return nil, fmt.Errorf("%w: book %s: %w", ErrDownloadFailed, id, errors.Join(errs...))
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
