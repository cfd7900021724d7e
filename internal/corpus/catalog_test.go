package corpus

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sha1n/ngram-viewer/internal/domain"
)

func testEntries() []domain.CatalogEntry {
	return []domain.CatalogEntry{
		{ID: "1342", Title: "Pride and Prejudice", Author: "Jane Austen", Year: 1813, Words: 120000},
		{ID: "84", Title: "Frankenstein", Author: "Mary Shelley", Year: 1818, Words: 75000},
		{ID: "2701", Title: "Moby Dick", Author: "Herman Melville", Year: 1851, Words: 210000},
		{ID: "11", Title: "Alice's Adventures in Wonderland", Author: "Lewis Carroll", Year: 1865, Words: 27000},
		{ID: "74", Title: "The Adventures of Tom Sawyer", Author: "Mark Twain", Year: 1876, Words: 70000},
	}
}

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), CatalogDirname))
	if err != nil {
		t.Fatalf("OpenCatalog failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Rebuild(testEntries()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	return c
}

func TestCatalog_Rebuild(t *testing.T) {
	c := openTestCatalog(t)

	count, err := c.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 books, got %d", count)
	}

	// Rebuilding replaces rather than appends
	if err := c.Rebuild(testEntries()[:2]); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	count, _ = c.Count()
	if count != 2 {
		t.Errorf("Expected 2 books after rebuild, got %d", count)
	}
}

func TestCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), CatalogDirname)
	c, err := OpenCatalog(path)
	if err != nil {
		t.Fatalf("OpenCatalog failed: %v", err)
	}
	if err := c.Rebuild(testEntries()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenCatalog(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	count, _ := reopened.Count()
	if count != 5 {
		t.Errorf("Expected 5 books after reopen, got %d", count)
	}
}

func TestCatalog_SearchByTitleAndAuthor(t *testing.T) {
	c := openTestCatalog(t)

	entries, total, err := c.Search("adventures", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("Expected 2 results, got %d (%v)", total, entries)
	}

	entries, _, err = c.Search("melville", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 result, got %v", entries)
	}
	got := entries[0]
	if got.ID != "2701" || got.Title != "Moby Dick" || got.Author != "Herman Melville" || got.Year != 1851 || got.Words != 210000 {
		t.Errorf("Unexpected entry: %+v", got)
	}
	if got.Score <= 0 {
		t.Errorf("Expected a positive score, got %v", got.Score)
	}
}

func TestCatalog_SearchByYear(t *testing.T) {
	c := openTestCatalog(t)

	entries, _, err := c.Search("1818", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "84" {
		t.Errorf("Expected Frankenstein, got %v", entries)
	}
}

func TestCatalog_SearchEmptyListsByYear(t *testing.T) {
	c := openTestCatalog(t)

	entries, total, err := c.Search("", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected total 5, got %d", total)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	wantIDs := []string{"1342", "84", "2701"}
	for i, id := range wantIDs {
		if entries[i].ID != id {
			t.Errorf("entries[%d].ID = %s, want %s", i, entries[i].ID, id)
		}
	}
}

func TestCatalog_SearchNoResults(t *testing.T) {
	c := openTestCatalog(t)

	entries, total, err := c.Search("dostoevsky", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 0 || len(entries) != 0 {
		t.Errorf("Expected no results, got %v", entries)
	}
}

func TestCatalog_DecadeSummary(t *testing.T) {
	c := openTestCatalog(t)

	summary, err := c.DecadeSummary(1813, 1876)
	if err != nil {
		t.Fatalf("DecadeSummary failed: %v", err)
	}

	want := map[int]int{1810: 2, 1850: 1, 1860: 1, 1870: 1}
	if len(summary) != len(want) {
		t.Fatalf("Expected %v, got %v", want, summary)
	}
	for decade, n := range want {
		if summary[decade] != n {
			t.Errorf("summary[%d] = %d, want %d", decade, summary[decade], n)
		}
	}
}

func TestCatalog_DecadeSummary_EmptyRange(t *testing.T) {
	c := openTestCatalog(t)

	summary, err := c.DecadeSummary(1900, 1800)
	if err != nil {
		t.Fatalf("DecadeSummary failed: %v", err)
	}
	if len(summary) != 0 {
		t.Errorf("Expected empty summary, got %v", summary)
	}
}

func TestCatalog_Closed(t *testing.T) {
	c, err := OpenCatalog(filepath.Join(t.TempDir(), CatalogDirname))
	if err != nil {
		t.Fatalf("OpenCatalog failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	if _, err := c.Count(); !errors.Is(err, ErrCatalogClosed) {
		t.Errorf("Expected ErrCatalogClosed, got %v", err)
	}
	if _, _, err := c.Search("x", 1); !errors.Is(err, ErrCatalogClosed) {
		t.Errorf("Expected ErrCatalogClosed, got %v", err)
	}
	if _, err := c.DecadeSummary(1800, 1900); !errors.Is(err, ErrCatalogClosed) {
		t.Errorf("Expected ErrCatalogClosed, got %v", err)
	}
}
