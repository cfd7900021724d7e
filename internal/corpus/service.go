package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sha1n/ngram-viewer/internal/config"
	"github.com/sha1n/ngram-viewer/internal/domain"
)

const (
	// BooksDirname is the directory of downloaded book texts
	BooksDirname = "books"

	// fallbackChecksum fingerprints the built-in sample dataset
	fallbackChecksum = "fallback"
)

var (
	// ErrBookNotFound indicates an id that is not in the dataset or has no text
	ErrBookNotFound = errors.New("book not found")

	// ErrCacheBusy indicates another process holds the cache lock
	ErrCacheBusy = errors.New("cache is locked by another process")
)

// Summary describes the loaded corpus.
type Summary struct {
	Dataset   string            `json:"dataset"`
	Fallback  bool              `json:"fallback"`
	Books     int               `json:"books"`
	Rejected  int               `json:"rejected"`
	Available int               `json:"available"`
	Words     int               `json:"words"`
	Decades   map[int]int       `json:"decades"`
	Errors    map[string]string `json:"errors,omitempty"`
	LastSync  time.Time         `json:"last_sync"`
}

// Service coordinates the dataset, the download cache, the catalog and document assembly.
type Service struct {
	settings        *config.CorpusSettings
	dataset         *Dataset
	datasetChecksum string
	downloader      *Downloader
	manifest        *Manifest
	lock            *CacheLock
	catalog         *Catalog

	docs       []domain.Document
	docsLoaded bool
	mu         sync.RWMutex
}

// NewService loads the dataset and cache state described by settings.
// A missing dataset file falls back to a small built-in sample.
func NewService(settings *config.CorpusSettings) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	booksDir := filepath.Join(settings.DataDir, BooksDirname)
	if err := os.MkdirAll(booksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create books directory: %w", err)
	}

	dataset, checksum, err := readDataset(settings.Dataset)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded dataset", "path", settings.Dataset, "books", len(dataset.Books), "rejected", dataset.Rejected)

	manifest, err := LoadManifest(filepath.Join(settings.DataDir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	fetcher := NewHTTPFetcher(settings.Fetch.Timeout, settings.Fetch.RateLimit, settings.Fetch.MaxParallel)

	return &Service{
		settings:        settings,
		dataset:         dataset,
		datasetChecksum: checksum,
		downloader:      NewDownloader(fetcher, settings.Fetch.Mirrors, booksDir),
		manifest:        manifest,
		lock:            NewCacheLock(filepath.Join(settings.DataDir, LockFilename)),
	}, nil
}

func readDataset(path string) (*Dataset, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Dataset not found, using built-in sample", "path", path)
			return FallbackDataset(), fallbackChecksum, nil
		}
		return nil, "", fmt.Errorf("failed to read dataset: %w", err)
	}
	dataset, err := ParseDataset(data)
	if err != nil {
		return nil, "", err
	}
	return dataset, Checksum(data), nil
}

// SetFetcher allows injecting a custom fetcher for testing.
func (s *Service) SetFetcher(f Fetcher) {
	s.downloader = NewDownloader(f, s.settings.Fetch.Mirrors, s.downloader.booksDir)
}

// Dataset returns the loaded dataset.
func (s *Service) Dataset() *Dataset {
	return s.dataset
}

// Initialize brings the cache up to date under the cache lock and opens the catalog.
// When another process holds the lock, it waits for it to finish first.
func (s *Service) Initialize(ctx context.Context) error {
	acquired, err := s.lock.TryAcquire()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		slog.Info("Another instance is updating the cache, waiting for completion")
		if err := s.lock.Acquire(ctx, s.settings.Fetch.LockTimeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("Timeout waiting for cache lock, using existing cache", "error", err)
			return s.openCatalog()
		}
		// The other process may have downloaded books in the meantime
		if err := s.reloadManifest(); err != nil {
			s.releaseLock()
			return err
		}
	}
	defer s.releaseLock()

	if s.settings.Fetch.Enabled {
		if err := s.Sync(ctx); err != nil {
			slog.Error("Sync failed", "error", err)
		}
	}

	if err := s.refreshCatalog(); err != nil {
		return err
	}
	return s.saveManifest()
}

func (s *Service) releaseLock() {
	if err := s.lock.Release(); err != nil {
		slog.Error("Failed to release cache lock", "error", err)
	}
}

func (s *Service) reloadManifest() error {
	manifest, err := LoadManifest(s.manifestPath())
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	s.manifest = manifest
	return nil
}

// Sync downloads every dataset book without inline text that is not cached yet.
// Downloads run in parallel, bounded by the max-parallel setting.
func (s *Service) Sync(ctx context.Context) error {
	var ids []string
	for _, b := range s.dataset.Books {
		if !b.HasText {
			ids = append(ids, b.ID)
		}
	}

	for _, id := range s.manifest.RemoveStaleBooks(s.dataset.IDs()) {
		slog.Info("Removing stale book", "id", id)
		if err := os.Remove(s.downloader.BookPath(id)); err != nil && !os.IsNotExist(err) {
			slog.Error("Failed to remove stale book", "id", id, "error", err)
		}
	}

	parallel := max(s.settings.Fetch.MaxParallel, 1)
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	errChan := make(chan error, len(ids))

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.syncBook(ctx, id); err != nil {
				slog.Error("Failed to sync book", "id", id, "error", err)
				s.manifest.SetBookError(id, err.Error())
				errChan <- fmt.Errorf("sync %s: %w", id, err)
			}
		}(id)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	s.manifest.UpdateLastSync()
	s.invalidateDocuments()

	if len(errs) > 0 {
		return fmt.Errorf("%d book download(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (s *Service) syncBook(ctx context.Context, id string) error {
	dl, err := s.downloader.Get(ctx, id)
	if err != nil {
		return err
	}

	checksum := Checksum(dl.Data)
	if state, ok := s.manifest.Book(id); ok && dl.Cached && state.Checksum == checksum && state.Error == "" {
		return nil
	}

	state := BookState{
		URL:          dl.URL,
		DownloadedAt: time.Now(),
		Checksum:     checksum,
		Size:         int64(len(dl.Data)),
		Words:        CountWords(Prepare(dl.Data, false)),
	}
	if dl.Cached {
		if prev, ok := s.manifest.Book(id); ok {
			state.URL = prev.URL
			state.DownloadedAt = prev.DownloadedAt
		}
		slog.Debug("Verified cached book", "id", id)
	} else {
		slog.Info("Downloaded book", "id", id, "url", dl.URL, "bytes", len(dl.Data))
	}
	s.manifest.SetBook(id, state)
	return nil
}

// catalogEntries returns the catalog content for the dataset.
func (s *Service) catalogEntries() []domain.CatalogEntry {
	entries := make([]domain.CatalogEntry, 0, len(s.dataset.Books))
	for _, b := range s.dataset.Books {
		entry := domain.CatalogEntry{ID: b.ID, Title: b.Title, Author: b.Author, Year: b.Year}
		if b.HasText {
			entry.Words = CountWords(b.Text)
		} else if state, ok := s.manifest.Book(b.ID); ok {
			entry.Words = state.Words
		}
		entries = append(entries, entry)
	}
	return entries
}

// catalogFingerprint identifies the dataset plus the known word counts.
func catalogFingerprint(datasetChecksum string, entries []domain.CatalogEntry) string {
	d := xxhash.New()
	_, _ = d.WriteString(datasetChecksum)
	for _, e := range entries {
		_, _ = d.WriteString(e.ID)
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(strconv.Itoa(e.Words))
		_, _ = d.WriteString("\n")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// refreshCatalog opens the catalog and rebuilds it when the dataset or word counts changed.
func (s *Service) refreshCatalog() error {
	if err := s.openCatalog(); err != nil {
		return err
	}

	entries := s.catalogEntries()
	fingerprint := catalogFingerprint(s.datasetChecksum, entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.catalog.Count()
	if err == nil && s.manifest.CatalogCurrent(fingerprint) && count == uint64(len(entries)) {
		slog.Debug("Catalog is up to date", "books", count)
		return nil
	}

	slog.Info("Rebuilding catalog", "books", len(entries))
	if err := s.catalog.Rebuild(entries); err != nil {
		return fmt.Errorf("failed to rebuild catalog: %w", err)
	}
	s.manifest.SetCatalogChecksum(fingerprint)
	return nil
}

func (s *Service) openCatalog() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog != nil {
		return nil
	}
	catalog, err := OpenCatalog(filepath.Join(s.settings.DataDir, CatalogDirname))
	if err != nil {
		return err
	}
	s.catalog = catalog
	return nil
}

func (s *Service) manifestPath() string {
	return filepath.Join(s.settings.DataDir, ManifestFilename)
}

func (s *Service) saveManifest() error {
	return s.manifest.Save(s.manifestPath())
}

func (s *Service) invalidateDocuments() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.docsLoaded = false
}

// Documents returns the searchable corpus in dataset order.
// Books whose text is neither inline nor cached are skipped with a warning.
// The result is computed once and shared; callers must not modify it.
func (s *Service) Documents(ctx context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	if s.docsLoaded {
		docs := s.docs
		s.mu.RUnlock()
		return docs, nil
	}
	s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.dataset.Books))
	for _, b := range s.dataset.Books {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var raw []byte
		if b.HasText {
			raw = []byte(b.Text)
		} else {
			data, err := s.downloader.ReadCached(b.ID)
			if err != nil {
				slog.Warn("Book text unavailable, skipping", "id", b.ID, "title", b.Title)
				continue
			}
			raw = data
		}

		text := Prepare(raw, s.settings.Normalize)
		docs = append(docs, domain.Document{
			ID:     b.ID,
			Title:  b.Title,
			Author: b.Author,
			Year:   b.Year,
			Text:   text,
			Words:  CountWords(text),
		})
	}

	s.mu.Lock()
	s.docs = docs
	s.docsLoaded = true
	s.mu.Unlock()

	slog.Info("Corpus ready", "documents", len(docs), "books", len(s.dataset.Books))
	return docs, nil
}

// Document returns a single document by id.
func (s *Service) Document(ctx context.Context, id string) (domain.Document, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	for _, d := range docs {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Document{}, fmt.Errorf("%w: %s", ErrBookNotFound, id)
}

// NormalizePattern prepares a query pattern the same way the corpus text was prepared.
func (s *Service) NormalizePattern(pattern string) string {
	if s.settings.Normalize {
		return NormalizePattern(pattern)
	}
	return pattern
}

// Summary describes the dataset, the cache and the per-decade book distribution.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Dataset:   s.settings.Dataset,
		Fallback:  s.dataset.Fallback,
		Books:     len(s.dataset.Books),
		Rejected:  s.dataset.Rejected,
		Available: len(docs),
		Errors:    s.manifest.BooksWithErrors(),
		LastSync:  s.manifest.LastSync(),
		Decades:   map[int]int{},
	}
	for _, d := range docs {
		summary.Words += d.Words
	}

	if len(s.dataset.Books) == 0 {
		return summary, nil
	}
	minYear, maxYear := s.dataset.Books[0].Year, s.dataset.Books[0].Year
	for _, b := range s.dataset.Books[1:] {
		minYear = min(minYear, b.Year)
		maxYear = max(maxYear, b.Year)
	}

	if err := s.openCatalog(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	decades, err := s.catalog.DecadeSummary(minYear, maxYear)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	summary.Decades = decades
	return summary, nil
}

// SearchBooks finds catalog entries by title, author or year.
func (s *Service) SearchBooks(query string, limit int) ([]domain.CatalogEntry, uint64, error) {
	if err := s.openCatalog(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Search(query, limit)
}

// ClearCache removes downloaded books, the catalog and the manifest.
func (s *Service) ClearCache() error {
	acquired, err := s.lock.TryAcquire()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return ErrCacheBusy
	}
	defer s.releaseLock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			slog.Error("Failed to close catalog", "error", err)
		}
		s.catalog = nil
	}

	for _, path := range []string{
		s.downloader.booksDir,
		filepath.Join(s.settings.DataDir, CatalogDirname),
		s.manifestPath(),
	} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(s.downloader.booksDir, 0755); err != nil {
		return fmt.Errorf("failed to create books directory: %w", err)
	}

	s.manifest = NewManifest()
	s.docs = nil
	s.docsLoaded = false
	slog.Info("Cache cleared", "data_dir", s.settings.DataDir)
	return nil
}

// Close releases all resources.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			return fmt.Errorf("failed to close catalog: %w", err)
		}
		s.catalog = nil
	}
	return nil
}
