package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is one corpus record ready for matching.
// The text is already cleaned; the core treats documents as read-only.
type Document struct {
	// ID is the catalog identifier (a Project Gutenberg ebook number for downloaded books).
	ID string `json:"id"`

	Title  string `json:"title"`
	Author string `json:"author"`

	// Year is the publication year used for bucketing.
	Year int `json:"year"`

	// Text is the body searched by the matchers.
	Text string `json:"-"`

	// Words is the number of words in Text, used for per-million rates.
	Words int `json:"words"`
}

// Label returns the display label "Title by Author".
func (d Document) Label() string {
	return BookLabel(d.Title, d.Author)
}

// BookLabel formats a title and author the way the catalog displays them.
func BookLabel(title, author string) string {
	if author == "" {
		return title
	}
	return title + " by " + author
}

// BookID is a catalog identifier. Dataset files carry it either as a JSON
// string or as a bare number.
type BookID string

// UnmarshalJSON accepts both "1342" and 1342.
func (id *BookID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = BookID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("book id must be a string or integer, got %s", data)
	}
	*id = BookID(strconv.FormatInt(n, 10))
	return nil
}

// BookRecord is one entry of the dataset file.
// Year and Text are pointers so that missing fields can be told apart from zero values.
type BookRecord struct {
	ID     BookID  `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author,omitempty"`
	Year   *int    `json:"year"`
	Text   *string `json:"text,omitempty"`
}

// CatalogEntry is the book metadata stored in the Bleve catalog index.
type CatalogEntry struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Year   int     `json:"year"`
	Words  int     `json:"words"`
	Score  float64 `json:"-"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	BookFieldID     = "id"
	BookFieldTitle  = "title"
	BookFieldAuthor = "author"
	BookFieldYear   = "year"
	BookFieldWords  = "words"
)

// Snippet is one occurrence of a pattern with its surrounding context.
// Offset is the byte offset of the match in the document text.
type Snippet struct {
	Offset int    `json:"offset"`
	Before string `json:"before"`
	Match  string `json:"match"`
	After  string `json:"after"`
}
