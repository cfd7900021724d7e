// Package analysis runs pattern queries over the corpus and shapes the results for display.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sha1n/ngram-viewer/internal/chart"
	"github.com/sha1n/ngram-viewer/internal/corpus"
	"github.com/sha1n/ngram-viewer/internal/domain"
	"github.com/sha1n/ngram-viewer/internal/frequency"
	"github.com/sha1n/ngram-viewer/internal/match"
)

// Corpus is the document source queried by the Analyzer.
type Corpus interface {
	Documents(ctx context.Context) ([]domain.Document, error)
	Document(ctx context.Context, id string) (domain.Document, error)
	NormalizePattern(pattern string) string
	Summary(ctx context.Context) (*corpus.Summary, error)
	SearchBooks(query string, limit int) ([]domain.CatalogEntry, uint64, error)
}

// Analyzer answers frequency, comparison and concordance queries.
type Analyzer struct {
	corpus     Corpus
	aggregator *frequency.Aggregator
	logger     *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil logger uses slog.Default().
func NewAnalyzer(c Corpus, opts frequency.Options, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		corpus:     c,
		aggregator: frequency.NewAggregator(opts, logger),
		logger:     logger,
	}
}

// Corpus returns the underlying corpus.
func (a *Analyzer) Corpus() Corpus {
	return a.corpus
}

// Report is the outcome of one frequency query.
type Report struct {
	ID         string                 `json:"id"`
	Pattern    string                 `json:"pattern"`
	Normalized string                 `json:"normalized"`
	Algorithm  match.Kind             `json:"-"`
	Level      frequency.Level        `json:"-"`
	Buckets    []frequency.Bucket     `json:"buckets"`
	Rates      []frequency.Rate       `json:"rates"`
	Total      int                    `json:"total"`
	Documents  int                    `json:"documents"`
	Skipped    []*frequency.DataError `json:"-"`
	Duration   time.Duration          `json:"duration"`
}

// Series converts the report into chart input, as raw counts or as rates per million words.
func (r *Report) Series(perMillion bool) chart.Series {
	s := chart.Series{Pattern: r.Pattern, Level: r.Level, Rates: perMillion}
	if perMillion {
		for _, rate := range r.Rates {
			s.Points = append(s.Points, chart.Point{Key: rate.Key, Value: rate.PerMillion})
		}
		return s
	}
	for _, b := range r.Buckets {
		s.Points = append(s.Points, chart.Point{Key: b.Key, Value: float64(b.Count)})
	}
	return s
}

// Search counts pattern occurrences across the corpus with the given algorithm and
// buckets them at the given level.
func (a *Analyzer) Search(ctx context.Context, pattern string, kind match.Kind, level frequency.Level) (*Report, error) {
	normalized := a.corpus.NormalizePattern(pattern)
	m, err := match.New(kind, normalized)
	if err != nil {
		return nil, err
	}

	docs, err := a.corpus.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	id := uuid.NewString()
	start := time.Now()
	result := a.aggregator.Aggregate(m, docs)
	elapsed := time.Since(start)

	table := result.Table(level)
	report := &Report{
		ID:         id,
		Pattern:    pattern,
		Normalized: normalized,
		Algorithm:  kind,
		Level:      level,
		Buckets:    table.Buckets(),
		Rates:      result.Rates(level),
		Total:      table.Total(),
		Documents:  result.Scanned(),
		Skipped:    result.Skipped,
		Duration:   elapsed,
	}

	a.logger.InfoContext(ctx, "Search completed",
		"query_id", id,
		"pattern", normalized,
		"algorithm", kind.String(),
		"level", level.String(),
		"documents", report.Documents,
		"skipped", len(report.Skipped),
		"total", report.Total,
		"duration", elapsed)
	return report, nil
}

// Comparison holds one report per algorithm for the same pattern.
type Comparison struct {
	ID            string    `json:"id"`
	Pattern       string    `json:"pattern"`
	PatternLength int       `json:"pattern_length"`
	Reports       []*Report `json:"reports"`

	// Agree is true when every algorithm produced identical buckets.
	Agree bool `json:"agree"`
}

// Timings returns the duration of each algorithm run.
func (c *Comparison) Timings() []chart.Timing {
	timings := make([]chart.Timing, len(c.Reports))
	for i, r := range c.Reports {
		timings[i] = chart.Timing{Name: r.Algorithm.DisplayName(), Duration: r.Duration}
	}
	return timings
}

// Compare runs every supported algorithm on the same pattern.
func (a *Analyzer) Compare(ctx context.Context, pattern string, level frequency.Level) (*Comparison, error) {
	cmp := &Comparison{ID: uuid.NewString(), Pattern: pattern, Agree: true}

	for _, kind := range match.Kinds() {
		report, err := a.Search(ctx, pattern, kind, level)
		if err != nil {
			return nil, err
		}
		cmp.Reports = append(cmp.Reports, report)
	}

	first := cmp.Reports[0]
	cmp.PatternLength = utf8.RuneCountInString(first.Normalized)
	for _, r := range cmp.Reports[1:] {
		if !sameBuckets(first.Buckets, r.Buckets) {
			cmp.Agree = false
			a.logger.ErrorContext(ctx, "Algorithms disagree", "comparison_id", cmp.ID, "pattern", first.Normalized,
				"algorithm", r.Algorithm.String())
		}
	}
	return cmp, nil
}

func sameBuckets(a, b []frequency.Bucket) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Concordance lists occurrences of a pattern in a single document with context.
type Concordance struct {
	Document domain.Document  `json:"document"`
	Pattern  string           `json:"pattern"`
	Total    int              `json:"total"`
	Snippets []domain.Snippet `json:"snippets"`
}

// Concordance finds the pattern in one document and returns up to limit snippets
// with width bytes of context on each side, cut at character boundaries.
func (a *Analyzer) Concordance(ctx context.Context, docID, pattern string, kind match.Kind, width, limit int) (*Concordance, error) {
	normalized := a.corpus.NormalizePattern(pattern)
	m, err := match.New(kind, normalized)
	if err != nil {
		return nil, err
	}

	doc, err := a.corpus.Document(ctx, docID)
	if err != nil {
		return nil, err
	}

	offsets := m.Occurrences(doc.Text)
	c := &Concordance{Document: doc, Pattern: normalized, Total: len(offsets)}
	if limit <= 0 || limit > len(offsets) {
		limit = len(offsets)
	}
	for _, off := range offsets[:limit] {
		c.Snippets = append(c.Snippets, Snippet(doc.Text, off, len(normalized), width))
	}

	a.logger.DebugContext(ctx, "Concordance", "document", docID, "pattern", normalized, "total", c.Total)
	return c, nil
}

// Snippet cuts the match at offset with up to width bytes of context on either side.
// Context boundaries are moved inward to the nearest UTF-8 character start.
func Snippet(text string, offset, length, width int) domain.Snippet {
	end := offset + length

	from := max(offset-width, 0)
	for from < offset && !utf8.RuneStart(text[from]) {
		from++
	}
	to := min(end+width, len(text))
	for to > end && to < len(text) && !utf8.RuneStart(text[to]) {
		to--
	}

	return domain.Snippet{
		Offset: offset,
		Before: text[from:offset],
		Match:  text[offset:end],
		After:  text[end:to],
	}
}
