package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sha1n/ngram-viewer/internal/domain"
)

// UnknownAuthor is used for dataset records without an author.
const UnknownAuthor = "Unknown"

// ErrDatasetNotFound indicates the dataset file does not exist.
var ErrDatasetNotFound = errors.New("dataset not found")

// Book is a validated dataset record.
type Book struct {
	ID     string
	Title  string
	Author string
	Year   int

	// Text is the raw inline text, set only when HasText is true.
	Text    string
	HasText bool
}

// Label returns "Title by Author".
func (b Book) Label() string {
	return domain.BookLabel(b.Title, b.Author)
}

// Dataset is the parsed book catalog file.
type Dataset struct {
	Books    []Book
	Rejected int

	// Fallback is true when the built-in sample was used instead of a file.
	Fallback bool
}

// IDs returns the book ids in dataset order.
func (d *Dataset) IDs() []string {
	ids := make([]string, len(d.Books))
	for i, b := range d.Books {
		ids[i] = b.ID
	}
	return ids
}

type datasetFile struct {
	Books []domain.BookRecord `json:"books"`
}

// LoadDataset reads a JSON dataset of the form {"books": [...]}.
// Records without an id, title or year are rejected and counted; duplicate ids keep the first record.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset parses dataset JSON.
func ParseDataset(data []byte) (*Dataset, error) {
	var file datasetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	ds := &Dataset{Books: make([]Book, 0, len(file.Books))}
	seen := make(map[string]bool, len(file.Books))
	for i, rec := range file.Books {
		book, reason := validateRecord(rec)
		if reason == "" && seen[book.ID] {
			reason = "duplicate id"
		}
		if reason != "" {
			slog.Warn("Rejecting dataset record", "index", i, "id", string(rec.ID), "reason", reason)
			ds.Rejected++
			continue
		}
		seen[book.ID] = true
		ds.Books = append(ds.Books, book)
	}
	return ds, nil
}

func validateRecord(rec domain.BookRecord) (Book, string) {
	id := string(rec.ID)
	if id == "" {
		return Book{}, "missing id"
	}
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return Book{}, "missing title"
	}
	if rec.Year == nil {
		return Book{}, "missing year"
	}

	author := strings.TrimSpace(rec.Author)
	if author == "" {
		author = UnknownAuthor
	}

	book := Book{ID: id, Title: title, Author: author, Year: *rec.Year}
	if rec.Text != nil {
		book.Text = *rec.Text
		book.HasText = true
	}
	return book, ""
}

// FallbackDataset returns the small built-in sample used when no dataset file exists.
func FallbackDataset() *Dataset {
	return &Dataset{
		Fallback: true,
		Books: []Book{
			{ID: "1342", Title: "Pride and Prejudice", Author: "Jane Austen", Year: 1813},
			{ID: "11", Title: "Alice's Adventures in Wonderland", Author: "Lewis Carroll", Year: 1865},
			{ID: "74", Title: "The Adventures of Tom Sawyer", Author: "Mark Twain", Year: 1876},
			{ID: "84", Title: "Frankenstein", Author: "Mary Shelley", Year: 1818},
			{ID: "2701", Title: "Moby Dick", Author: "Herman Melville", Year: 1851},
		},
	}
}
