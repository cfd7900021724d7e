package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/ngram-viewer/internal/chart"
	"github.com/sha1n/ngram-viewer/internal/frequency"
	"github.com/sha1n/ngram-viewer/internal/match"
)

const (
	// DefaultContextWidth is the number of bytes shown on each side of a match
	DefaultContextWidth = 40

	// DefaultMatchLimit caps the snippets returned by show_matches
	DefaultMatchLimit = 20

	// DefaultBookLimit caps the entries returned by search_books
	DefaultBookLimit = 20
)

// ToolDefaults are applied when a tool call omits an optional argument.
type ToolDefaults struct {
	Algorithm  match.Kind
	Level      frequency.Level
	PerMillion bool
	ChartWidth int
}

func (d ToolDefaults) algorithm(name string) (match.Kind, error) {
	if strings.TrimSpace(name) == "" {
		return d.Algorithm, nil
	}
	return match.ParseKind(name)
}

func (d ToolDefaults) level(name string) (frequency.Level, error) {
	if strings.TrimSpace(name) == "" {
		return d.Level, nil
	}
	return frequency.ParseLevel(name)
}

func (d ToolDefaults) renderer() *chart.Renderer {
	return chart.NewRenderer(chart.Options{Width: d.ChartWidth})
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// FrequencyArgument defines ngram_frequency parameters.
type FrequencyArgument struct {
	Pattern    string `json:"pattern" jsonschema:"Word or phrase to count across the corpus"`
	Algorithm  string `json:"algorithm,omitempty" jsonschema:"Matching algorithm: kmp or boyer-moore"`
	Bucket     string `json:"bucket,omitempty" jsonschema:"Time bucket: year or decade"`
	PerMillion *bool  `json:"per_million,omitempty" jsonschema:"Report occurrences per million words instead of raw counts"`
}

// FrequencyHandler handles the ngram_frequency MCP tool.
type FrequencyHandler struct {
	analyzer *Analyzer
	defaults ToolDefaults
}

// NewFrequencyHandler creates a new frequency handler.
func NewFrequencyHandler(analyzer *Analyzer, defaults ToolDefaults) *FrequencyHandler {
	return &FrequencyHandler{analyzer: analyzer, defaults: defaults}
}

// Handle runs the query and returns the chart as text.
func (h *FrequencyHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args FrequencyArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Pattern) == "" {
		return errorResult("Pattern cannot be empty"), nil, nil
	}
	kind, err := h.defaults.algorithm(args.Algorithm)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}
	level, err := h.defaults.level(args.Bucket)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}
	perMillion := h.defaults.PerMillion
	if args.PerMillion != nil {
		perMillion = *args.PerMillion
	}

	report, err := h.analyzer.Search(ctx, args.Pattern, kind, level)
	if err != nil {
		return errorResult("Search failed: %s", err), nil, nil
	}

	var sb strings.Builder
	if err := h.defaults.renderer().Render(&sb, report.Series(perMillion)); err != nil {
		return errorResult("Failed to render chart: %s", err), nil, nil
	}
	fmt.Fprintf(&sb, "\nAlgorithm: %s, documents: %d, total occurrences: %d\n",
		kind.DisplayName(), report.Documents, report.Total)
	for _, skipped := range report.Skipped {
		fmt.Fprintf(&sb, "Skipped: %s\n", skipped)
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *FrequencyHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "ngram_frequency",
		Description: "Count how often a word or phrase occurs in the book corpus, bucketed by publication year or decade",
	}
}

// CompareArgument defines compare_algorithms parameters.
type CompareArgument struct {
	Pattern string `json:"pattern" jsonschema:"Word or phrase to search with every algorithm"`
	Bucket  string `json:"bucket,omitempty" jsonschema:"Time bucket: year or decade"`
}

// CompareHandler handles the compare_algorithms MCP tool.
type CompareHandler struct {
	analyzer *Analyzer
	defaults ToolDefaults
}

// NewCompareHandler creates a new comparison handler.
func NewCompareHandler(analyzer *Analyzer, defaults ToolDefaults) *CompareHandler {
	return &CompareHandler{analyzer: analyzer, defaults: defaults}
}

// Handle runs every algorithm and reports timings.
func (h *CompareHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args CompareArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Pattern) == "" {
		return errorResult("Pattern cannot be empty"), nil, nil
	}
	level, err := h.defaults.level(args.Bucket)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}

	cmp, err := h.analyzer.Compare(ctx, args.Pattern, level)
	if err != nil {
		return errorResult("Comparison failed: %s", err), nil, nil
	}

	var sb strings.Builder
	if err := h.defaults.renderer().RenderComparison(&sb, cmp.PatternLength, cmp.Timings()); err != nil {
		return errorResult("Failed to render comparison: %s", err), nil, nil
	}
	if cmp.Agree {
		fmt.Fprintf(&sb, "Results agree: %d occurrences\n", cmp.Reports[0].Total)
	} else {
		sb.WriteString("Results differ between algorithms\n")
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *CompareHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "compare_algorithms",
		Description: "Run KMP and Boyer-Moore on the same pattern and compare their running times",
	}
}

// MatchesArgument defines show_matches parameters.
type MatchesArgument struct {
	BookID    string `json:"book_id" jsonschema:"Catalog id of the book (e.g. 1342)"`
	Pattern   string `json:"pattern" jsonschema:"Word or phrase to find"`
	Algorithm string `json:"algorithm,omitempty" jsonschema:"Matching algorithm: kmp or boyer-moore"`
	Context   int    `json:"context,omitempty" jsonschema:"Bytes of context on each side of a match"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of matches to show"`
}

// MatchesHandler handles the show_matches MCP tool.
type MatchesHandler struct {
	analyzer *Analyzer
	defaults ToolDefaults
}

// NewMatchesHandler creates a new concordance handler.
func NewMatchesHandler(analyzer *Analyzer, defaults ToolDefaults) *MatchesHandler {
	return &MatchesHandler{analyzer: analyzer, defaults: defaults}
}

// Handle lists occurrences of the pattern in one book.
func (h *MatchesHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args MatchesArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.BookID) == "" {
		return errorResult("Book id cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Pattern) == "" {
		return errorResult("Pattern cannot be empty"), nil, nil
	}
	if args.Context < 0 || args.Limit < 0 {
		return errorResult("Context and limit cannot be negative"), nil, nil
	}
	kind, err := h.defaults.algorithm(args.Algorithm)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}

	width := args.Context
	if width == 0 {
		width = DefaultContextWidth
	}
	limit := args.Limit
	if limit == 0 {
		limit = DefaultMatchLimit
	}

	c, err := h.analyzer.Concordance(ctx, strings.TrimSpace(args.BookID), args.Pattern, kind, width, limit)
	if err != nil {
		return errorResult("Failed to find matches: %s", err), nil, nil
	}

	var sb strings.Builder
	heading := fmt.Sprintf("%s (%d): %d occurrences of '%s'", c.Document.Label(), c.Document.Year, c.Total, c.Pattern)
	if err := h.defaults.renderer().RenderMatches(&sb, heading, c.Total, c.Snippets); err != nil {
		return errorResult("Failed to render matches: %s", err), nil, nil
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *MatchesHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "show_matches",
		Description: "Show each occurrence of a pattern in one book with surrounding context",
	}
}

// SummaryArgument is empty; corpus_summary takes no parameters.
type SummaryArgument struct{}

// SummaryHandler handles the corpus_summary MCP tool.
type SummaryHandler struct {
	analyzer *Analyzer
	defaults ToolDefaults
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(analyzer *Analyzer, defaults ToolDefaults) *SummaryHandler {
	return &SummaryHandler{analyzer: analyzer, defaults: defaults}
}

// Handle describes the loaded corpus.
func (h *SummaryHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SummaryArgument) (*mcp.CallToolResult, any, error) {
	summary, err := h.analyzer.Corpus().Summary(ctx)
	if err != nil {
		return errorResult("Failed to summarize corpus: %s", err), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dataset: %s", summary.Dataset)
	if summary.Fallback {
		sb.WriteString(" (built-in sample)")
	}
	fmt.Fprintf(&sb, "\nBooks: %d listed, %d with text, %d rejected\nWords: %d\n",
		summary.Books, summary.Available, summary.Rejected, summary.Words)
	if err := h.defaults.renderer().RenderSummary(&sb, summary.Decades); err != nil {
		return errorResult("Failed to render summary: %s", err), nil, nil
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SummaryHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "corpus_summary",
		Description: "Describe the book corpus: number of books, words and books per decade",
	}
}

// BooksArgument defines search_books parameters.
type BooksArgument struct {
	Query string `json:"query,omitempty" jsonschema:"Title, author or year to look for; empty lists all books"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of books to return"`
}

// BooksHandler handles the search_books MCP tool.
type BooksHandler struct {
	analyzer *Analyzer
	defaults ToolDefaults
}

// NewBooksHandler creates a new catalog search handler.
func NewBooksHandler(analyzer *Analyzer, defaults ToolDefaults) *BooksHandler {
	return &BooksHandler{analyzer: analyzer, defaults: defaults}
}

// Handle searches the book catalog.
func (h *BooksHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args BooksArgument) (*mcp.CallToolResult, any, error) {
	if args.Limit < 0 {
		return errorResult("Limit cannot be negative"), nil, nil
	}
	limit := args.Limit
	if limit == 0 {
		limit = DefaultBookLimit
	}

	entries, total, err := h.analyzer.Corpus().SearchBooks(strings.TrimSpace(args.Query), limit)
	if err != nil {
		return errorResult("Book search failed: %s", err), nil, nil
	}

	var sb strings.Builder
	if err := h.defaults.renderer().RenderBooks(&sb, entries, total); err != nil {
		return errorResult("Failed to render books: %s", err), nil, nil
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *BooksHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_books",
		Description: "Search the book catalog by title, author or publication year",
	}
}

// RegisterTools adds every analysis tool to the server.
func RegisterTools(server *mcp.Server, analyzer *Analyzer, defaults ToolDefaults) {
	frequencyHandler := NewFrequencyHandler(analyzer, defaults)
	mcp.AddTool(server, frequencyHandler.GetToolDefinition(), frequencyHandler.Handle)

	compareHandler := NewCompareHandler(analyzer, defaults)
	mcp.AddTool(server, compareHandler.GetToolDefinition(), compareHandler.Handle)

	matchesHandler := NewMatchesHandler(analyzer, defaults)
	mcp.AddTool(server, matchesHandler.GetToolDefinition(), matchesHandler.Handle)

	summaryHandler := NewSummaryHandler(analyzer, defaults)
	mcp.AddTool(server, summaryHandler.GetToolDefinition(), summaryHandler.Handle)

	booksHandler := NewBooksHandler(analyzer, defaults)
	mcp.AddTool(server, booksHandler.GetToolDefinition(), booksHandler.Handle)
}
