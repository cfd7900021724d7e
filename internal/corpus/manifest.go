package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the default manifest filename
	ManifestFilename = "manifest.json"
)

// Manifest stores the download and catalog state of the corpus cache.
type Manifest struct {
	Version int       `json:"version"`
	Synced  time.Time `json:"last_sync"`

	// CatalogChecksum fingerprints the dataset and word counts the catalog was built from.
	CatalogChecksum string               `json:"catalog_checksum"`
	Books           map[string]BookState `json:"books"`
	mu              sync.RWMutex         `json:"-"`
}

// BookState stores the download state of a single book.
type BookState struct {
	URL          string    `json:"url,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
	Checksum     string    `json:"checksum,omitempty"`
	Size         int64     `json:"size"`
	Words        int       `json:"words"`
	Error        string    `json:"error,omitempty"`
}

// Checksum returns the hex xxhash of data.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Books:   make(map[string]BookState),
	}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
// A manifest with a different schema version is discarded.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return NewManifest(), nil
	}
	if manifest.Books == nil {
		manifest.Books = make(map[string]BookState)
	}
	return &manifest, nil
}

// Save writes the manifest to disk atomically.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// Book returns the state of a book.
func (m *Manifest) Book(id string) (BookState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Books[id]
	return state, ok
}

// SetBook records a successful download or cache verification.
func (m *Manifest) SetBook(id string, state BookState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Error = ""
	m.Books[id] = state
}

// SetBookError records a failed download, keeping whatever else is known about the book.
func (m *Manifest) SetBookError(id string, err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.Books[id]
	state.Error = err
	m.Books[id] = state
}

// BooksWithErrors returns the last error of every failed book.
func (m *Manifest) BooksWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for id, state := range m.Books {
		if state.Error != "" {
			result[id] = state.Error
		}
	}
	return result
}

// RemoveStaleBooks removes books that are no longer in the dataset.
// Returns the removed ids, sorted.
func (m *Manifest) RemoveStaleBooks(ids []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	expected := make(map[string]bool, len(ids))
	for _, id := range ids {
		expected[id] = true
	}

	var removed []string
	for id := range m.Books {
		if !expected[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(m.Books, id)
	}
	sort.Strings(removed)
	return removed
}

// CatalogCurrent reports whether the catalog was built with this fingerprint.
func (m *Manifest) CatalogCurrent(checksum string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CatalogChecksum != "" && m.CatalogChecksum == checksum
}

// SetCatalogChecksum records the fingerprint of the catalog content.
func (m *Manifest) SetCatalogChecksum(checksum string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CatalogChecksum = checksum
}

// UpdateLastSync updates the last sync timestamp.
func (m *Manifest) UpdateLastSync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Synced = time.Now()
}

// LastSync returns the last sync timestamp.
func (m *Manifest) LastSync() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Synced
}
