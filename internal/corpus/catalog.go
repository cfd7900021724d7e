package corpus

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/ngram-viewer/internal/domain"
	"github.com/sha1n/ngram-viewer/internal/frequency"
)

const (
	// CatalogDirname is the name of the catalog index directory
	CatalogDirname = "catalog.bleve"

	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 100

	// decadeFacet is the facet name used by DecadeSummary
	decadeFacet = "decades"
)

// ErrCatalogClosed indicates the catalog index is not open.
var ErrCatalogClosed = errors.New("catalog is closed")

// Catalog is a Bleve index of book metadata.
type Catalog struct {
	path  string
	index bleve.Index
}

// CreateCatalogMapping creates the Bleve index mapping for book metadata.
func CreateCatalogMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	docMapping.AddFieldMappingsAt(domain.BookFieldTitle, titleField)

	authorField := bleve.NewTextFieldMapping()
	authorField.Analyzer = standard.Name
	authorField.Store = true
	docMapping.AddFieldMappingsAt(domain.BookFieldAuthor, authorField)

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.BookFieldID, idField)

	yearField := bleve.NewNumericFieldMapping()
	yearField.Store = true
	docMapping.AddFieldMappingsAt(domain.BookFieldYear, yearField)

	wordsField := bleve.NewNumericFieldMapping()
	wordsField.Store = true
	wordsField.Index = false
	docMapping.AddFieldMappingsAt(domain.BookFieldWords, wordsField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// OpenCatalog opens the catalog at path, creating an empty one if needed.
func OpenCatalog(path string) (*Catalog, error) {
	index, err := bleve.Open(path)
	if err != nil {
		index, err = bleve.New(path, CreateCatalogMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog: %w", err)
		}
	}
	return &Catalog{path: path, index: index}, nil
}

// Rebuild replaces the catalog content with entries.
func (c *Catalog) Rebuild(entries []domain.CatalogEntry) error {
	if c.index != nil {
		if err := c.index.Close(); err != nil {
			return fmt.Errorf("failed to close catalog: %w", err)
		}
		c.index = nil
	}
	if err := os.RemoveAll(c.path); err != nil {
		return fmt.Errorf("failed to remove catalog: %w", err)
	}

	index, err := bleve.New(c.path, CreateCatalogMapping())
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	c.index = index

	batch := index.NewBatch()
	for _, entry := range entries {
		if err := batch.Index(entry.ID, entry); err != nil {
			return fmt.Errorf("failed to index book %s: %w", entry.ID, err)
		}
		if batch.Size() >= MaxBatchSize {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("batch index failed: %w", err)
			}
			batch = index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("final batch index failed: %w", err)
		}
	}
	return nil
}

// Count returns the number of books in the catalog.
func (c *Catalog) Count() (uint64, error) {
	if c.index == nil {
		return 0, ErrCatalogClosed
	}
	return c.index.DocCount()
}

// Search finds books by title, author or publication year.
// An empty query lists the catalog ordered by year.
func (c *Catalog) Search(text string, limit int) ([]domain.CatalogEntry, uint64, error) {
	if c.index == nil {
		return nil, 0, ErrCatalogClosed
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(buildCatalogQuery(text), limit, 0, false)
	req.Fields = []string{domain.BookFieldID, domain.BookFieldTitle, domain.BookFieldAuthor, domain.BookFieldYear, domain.BookFieldWords}
	if strings.TrimSpace(text) == "" {
		req.SortBy([]string{domain.BookFieldYear, "_id"})
	}

	res, err := c.index.Search(req)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog search failed: %w", err)
	}

	entries := make([]domain.CatalogEntry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		entry := domain.CatalogEntry{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields[domain.BookFieldTitle].(string); ok {
			entry.Title = v
		}
		if v, ok := hit.Fields[domain.BookFieldAuthor].(string); ok {
			entry.Author = v
		}
		if v, ok := hit.Fields[domain.BookFieldYear].(float64); ok {
			entry.Year = int(v)
		}
		if v, ok := hit.Fields[domain.BookFieldWords].(float64); ok {
			entry.Words = int(v)
		}
		entries = append(entries, entry)
	}
	return entries, res.Total, nil
}

func buildCatalogQuery(text string) query.Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return bleve.NewMatchAllQuery()
	}

	titleQuery := bleve.NewMatchQuery(text)
	titleQuery.SetField(domain.BookFieldTitle)
	titleQuery.SetBoost(2.0)

	authorQuery := bleve.NewMatchQuery(text)
	authorQuery.SetField(domain.BookFieldAuthor)

	disjuncts := []query.Query{titleQuery, authorQuery}

	if year, err := strconv.Atoi(text); err == nil {
		v := float64(year)
		inclusive := true
		yearQuery := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
		yearQuery.SetField(domain.BookFieldYear)
		disjuncts = append(disjuncts, yearQuery)
	}

	return bleve.NewDisjunctionQuery(disjuncts...)
}

// DecadeSummary counts catalog books per decade between fromYear and toYear (inclusive).
// Decades without books are omitted.
func (c *Catalog) DecadeSummary(fromYear, toYear int) (map[int]int, error) {
	if c.index == nil {
		return nil, ErrCatalogClosed
	}
	summary := make(map[int]int)
	if fromYear > toYear {
		return summary, nil
	}

	first, last := frequency.DecadeOf(fromYear), frequency.DecadeOf(toYear)
	facet := bleve.NewFacetRequest(domain.BookFieldYear, (last-first)/10+1)
	for decade := first; decade <= last; decade += 10 {
		lo, hi := float64(decade), float64(decade+10)
		facet.AddNumericRange(strconv.Itoa(decade), &lo, &hi)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 0, 0, false)
	req.AddFacet(decadeFacet, facet)

	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("catalog facet search failed: %w", err)
	}

	result, ok := res.Facets[decadeFacet]
	if !ok {
		return summary, nil
	}
	for _, r := range result.NumericRanges {
		decade, err := strconv.Atoi(r.Name)
		if err != nil || r.Count == 0 {
			continue
		}
		summary[decade] = r.Count
	}
	return summary, nil
}

// Close closes the index.
func (c *Catalog) Close() error {
	if c.index == nil {
		return nil
	}
	err := c.index.Close()
	c.index = nil
	return err
}
