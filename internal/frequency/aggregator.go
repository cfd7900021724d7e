package frequency

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sha1n/ngram-viewer/internal/domain"
	"github.com/sha1n/ngram-viewer/internal/match"
)

// DataError reports a document that was skipped because its year is outside
// the configured range. It never aborts an aggregation.
type DataError struct {
	DocumentID string
	Title      string
	Year       int
	MinYear    int
	MaxYear    int
}

func (e *DataError) Error() string {
	return fmt.Sprintf("document %s (%q): year %d outside [%d, %d]", e.DocumentID, e.Title, e.Year, e.MinYear, e.MaxYear)
}

// Options configures an Aggregator.
type Options struct {
	// MinYear and MaxYear bound the plausible publication years (inclusive).
	MinYear int
	MaxYear int

	// Workers is the number of documents scanned concurrently. Values below 2
	// scan sequentially.
	Workers int
}

// Aggregator applies a matcher across a corpus and sums counts per year.
type Aggregator struct {
	opts   Options
	logger *slog.Logger
}

// NewAggregator creates an aggregator. A nil logger uses slog.Default().
func NewAggregator(opts Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Aggregator{opts: opts, logger: logger}
}

// Rate is a bucket's count normalized by the number of words scanned.
type Rate struct {
	Key        int     `json:"key"`
	Count      int     `json:"count"`
	Words      int     `json:"words"`
	PerMillion float64 `json:"per_million"`
}

// Result holds the outcome of one aggregation.
type Result struct {
	years     Table
	words     Table
	scanned   int
	Skipped   []*DataError
	Algorithm match.Kind
	Pattern   string
}

// Scanned returns the number of documents that contributed to the result.
func (r *Result) Scanned() int {
	return r.scanned
}

// Table returns the counts at the requested level.
// Every year with at least one scanned document has a bucket, even when its count is zero.
func (r *Result) Table(level Level) Table {
	if level == Decade {
		return r.years.Decades()
	}
	return r.years
}

// Words returns the number of words scanned per bucket.
func (r *Result) Words(level Level) Table {
	if level == Decade {
		return r.words.Decades()
	}
	return r.words
}

// Rates returns occurrences per million words for each bucket.
func (r *Result) Rates(level Level) []Rate {
	counts := r.Table(level)
	words := r.Words(level)
	rates := make([]Rate, 0, counts.Len())
	for _, b := range counts.Buckets() {
		w, _ := words.Get(b.Key)
		rate := Rate{Key: b.Key, Count: b.Count, Words: w}
		if w > 0 {
			rate.PerMillion = float64(b.Count) / float64(w) * 1_000_000
		}
		rates = append(rates, rate)
	}
	return rates
}

// Aggregate runs m over every document and buckets the occurrence counts by year.
// Documents with an out-of-range year are reported in Result.Skipped.
func (a *Aggregator) Aggregate(m match.Matcher, docs []domain.Document) *Result {
	result := &Result{Algorithm: m.Kind(), Pattern: m.Pattern()}

	valid := make([]bool, len(docs))
	for i, doc := range docs {
		if doc.Year < a.opts.MinYear || doc.Year > a.opts.MaxYear {
			dataErr := &DataError{
				DocumentID: doc.ID,
				Title:      doc.Title,
				Year:       doc.Year,
				MinYear:    a.opts.MinYear,
				MaxYear:    a.opts.MaxYear,
			}
			a.logger.Warn("Skipping document", "id", doc.ID, "year", doc.Year, "error", dataErr)
			result.Skipped = append(result.Skipped, dataErr)
			continue
		}
		valid[i] = true
	}

	counts := a.scan(m, docs, valid)

	years := make(map[int]int)
	words := make(map[int]int)
	for i, doc := range docs {
		if !valid[i] {
			continue
		}
		years[doc.Year] += counts[i]
		words[doc.Year] += doc.Words
		result.scanned++
	}

	result.years = NewTable(years)
	result.words = NewTable(words)
	return result
}

// scan returns the occurrence count of every valid document, indexed like docs.
func (a *Aggregator) scan(m match.Matcher, docs []domain.Document, valid []bool) []int {
	counts := make([]int, len(docs))
	if a.opts.Workers == 1 {
		for i := range docs {
			if valid[i] {
				counts[i] = len(m.Occurrences(docs[i].Text))
			}
		}
		return counts
	}

	// Each goroutine writes only its own slot; the matcher is read-only.
	sem := make(chan struct{}, a.opts.Workers)
	var wg sync.WaitGroup
	for i := range docs {
		if !valid[i] {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			counts[i] = len(m.Occurrences(docs[i].Text))
		}(i)
	}
	wg.Wait()
	return counts
}
