package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/ngram-viewer/internal/analysis"
	"github.com/sha1n/ngram-viewer/internal/chart"
	"github.com/sha1n/ngram-viewer/internal/config"
	"github.com/sha1n/ngram-viewer/internal/corpus"
	"github.com/sha1n/ngram-viewer/internal/frequency"
	"github.com/sha1n/ngram-viewer/internal/match"
	mcputil "github.com/sha1n/ngram-viewer/internal/mcp"
	"github.com/spf13/pflag"
)

// ServerName is the MCP implementation name
const ServerName = "ngram-viewer"

// Corpus is the loaded corpus the commands query.
type Corpus interface {
	analysis.Corpus
	Close() error
}

// RunParams contains dependencies for the run functions
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	OpenCorpus        func(context.Context, *config.CorpusSettings) (Corpus, error)
	ClearCache        func(*config.CorpusSettings) error
	StartSSEServer    func(context.Context, *mcp.Server, *config.Settings) error
	CreateServer      func(context.Context, *config.Settings, string) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
	Out               io.Writer     // Optional: defaults to stdout
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		OpenCorpus:     OpenCorpus,
		ClearCache:     ClearCache,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
		Out:            os.Stdout,
	}
}

// OpenCorpus loads the dataset, updates the download cache and opens the catalog.
func OpenCorpus(ctx context.Context, settings *config.CorpusSettings) (Corpus, error) {
	svc, err := corpus.NewService(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create corpus: %w", err)
	}
	if err := svc.Initialize(ctx); err != nil {
		if closeErr := svc.Close(); closeErr != nil {
			slog.Error("Failed to close corpus", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize corpus: %w", err)
	}
	return svc, nil
}

// ClearCache removes downloaded books and the catalog without touching the dataset.
func ClearCache(settings *config.CorpusSettings) error {
	svc, err := corpus.NewService(settings)
	if err != nil {
		return fmt.Errorf("failed to create corpus: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close corpus", "error", err)
		}
	}()
	return svc.ClearCache()
}

// setup loads and validates settings, then configures logging.
// Overrides are applied before validation.
func setup(params RunParams, flags *pflag.FlagSet, overrides ...func(*config.Settings)) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	for _, override := range overrides {
		override(settings)
	}

	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Logs always go to stderr; stdout carries command output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(settings.LogLevel)})
	slog.SetDefault(slog.New(handler))
	config.Log(settings)

	return settings, nil
}

func output(params RunParams) io.Writer {
	if params.Out == nil {
		return os.Stdout
	}
	return params.Out
}

func newAnalyzer(settings *config.Settings, c analysis.Corpus) *analysis.Analyzer {
	return analysis.NewAnalyzer(c, frequency.Options{
		MinYear: settings.Search.MinYear,
		MaxYear: settings.Search.MaxYear,
		Workers: settings.Search.Workers,
	}, slog.Default())
}

func newRenderer(settings *config.Settings, out io.Writer) *chart.Renderer {
	f, _ := out.(*os.File)
	return chart.NewRenderer(chart.Options{
		Width: chart.ResolveWidth(settings.Chart.Width, f),
		Color: settings.Chart.Color,
	})
}

func toolDefaults(settings *config.Settings) (analysis.ToolDefaults, error) {
	kind, err := match.ParseKind(settings.Search.Algorithm)
	if err != nil {
		return analysis.ToolDefaults{}, err
	}
	level, err := frequency.ParseLevel(settings.Search.Bucket)
	if err != nil {
		return analysis.ToolDefaults{}, err
	}
	return analysis.ToolDefaults{
		Algorithm:  kind,
		Level:      level,
		PerMillion: settings.Search.PerMillion,
		ChartWidth: settings.Chart.Width,
	}, nil
}

// session is one command run against an open corpus.
type session struct {
	settings *config.Settings
	corpus   Corpus
	analyzer *analysis.Analyzer
	renderer *chart.Renderer
	defaults analysis.ToolDefaults
	out      io.Writer
}

func openSession(ctx context.Context, params RunParams, flags *pflag.FlagSet, overrides ...func(*config.Settings)) (*session, error) {
	settings, err := setup(params, flags, overrides...)
	if err != nil {
		return nil, err
	}
	defaults, err := toolDefaults(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c, err := params.OpenCorpus(ctx, &settings.Corpus)
	if err != nil {
		return nil, err
	}

	out := output(params)
	return &session{
		settings: settings,
		corpus:   c,
		analyzer: newAnalyzer(settings, c),
		renderer: newRenderer(settings, out),
		defaults: defaults,
		out:      out,
	}, nil
}

func (s *session) close() {
	if err := s.corpus.Close(); err != nil {
		slog.Error("Failed to close corpus", "error", err)
	}
}

// RunSearch plots the frequency of pattern over time.
func RunSearch(ctx context.Context, params RunParams, flags *pflag.FlagSet, pattern string) error {
	s, err := openSession(ctx, params, flags)
	if err != nil {
		return err
	}
	defer s.close()

	report, err := s.analyzer.Search(ctx, pattern, s.defaults.Algorithm, s.defaults.Level)
	if err != nil {
		return err
	}

	if err := s.renderer.Render(s.out, report.Series(s.defaults.PerMillion)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "\n%d occurrences in %d documents (%s, %.4f seconds)\n",
		report.Total, report.Documents, report.Algorithm.DisplayName(), report.Duration.Seconds())
	if n := len(report.Skipped); n > 0 {
		fmt.Fprintf(s.out, "%d document(s) skipped: publication year outside [%d, %d]\n",
			n, s.settings.Search.MinYear, s.settings.Search.MaxYear)
	}
	return nil
}

// RunCompare times every algorithm on pattern and fails if their results differ.
func RunCompare(ctx context.Context, params RunParams, flags *pflag.FlagSet, pattern string) error {
	s, err := openSession(ctx, params, flags)
	if err != nil {
		return err
	}
	defer s.close()

	cmp, err := s.analyzer.Compare(ctx, pattern, s.defaults.Level)
	if err != nil {
		return err
	}

	if err := s.renderer.RenderComparison(s.out, cmp.PatternLength, cmp.Timings()); err != nil {
		return err
	}
	if !cmp.Agree {
		return fmt.Errorf("algorithms returned different results for %q", pattern)
	}
	fmt.Fprintf(s.out, "All algorithms found %d occurrences\n", cmp.Reports[0].Total)
	return nil
}

// RunMatches prints every occurrence of pattern in one book with its context.
func RunMatches(ctx context.Context, params RunParams, flags *pflag.FlagSet, bookID, pattern string) error {
	s, err := openSession(ctx, params, flags)
	if err != nil {
		return err
	}
	defer s.close()

	width := intFlag(flags, "context", analysis.DefaultContextWidth)
	limit := intFlag(flags, "limit", analysis.DefaultMatchLimit)
	if width < 0 || limit < 0 {
		return fmt.Errorf("context and limit cannot be negative")
	}

	c, err := s.analyzer.Concordance(ctx, bookID, pattern, s.defaults.Algorithm, width, limit)
	if err != nil {
		return err
	}

	heading := fmt.Sprintf("%s (%d): %d occurrences of '%s'", c.Document.Label(), c.Document.Year, c.Total, c.Pattern)
	return s.renderer.RenderMatches(s.out, heading, c.Total, c.Snippets)
}

// RunInfo describes the corpus.
func RunInfo(ctx context.Context, params RunParams, flags *pflag.FlagSet) error {
	s, err := openSession(ctx, params, flags)
	if err != nil {
		return err
	}
	defer s.close()

	summary, err := s.corpus.Summary(ctx)
	if err != nil {
		return err
	}
	printSummary(s.out, summary)
	return s.renderer.RenderSummary(s.out, summary.Decades)
}

func printSummary(w io.Writer, summary *corpus.Summary) {
	fmt.Fprintf(w, "Dataset: %s", summary.Dataset)
	if summary.Fallback {
		fmt.Fprint(w, " (not found, using built-in sample)")
	}
	fmt.Fprintf(w, "\nBooks: %d listed, %d with text", summary.Books, summary.Available)
	if summary.Rejected > 0 {
		fmt.Fprintf(w, ", %d rejected", summary.Rejected)
	}
	fmt.Fprintf(w, "\nWords: %d\n", summary.Words)
	if !summary.LastSync.IsZero() {
		fmt.Fprintf(w, "Last sync: %s\n", summary.LastSync.Format("2006-01-02 15:04:05"))
	}

	ids := make([]string, 0, len(summary.Errors))
	for id := range summary.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "Failed: %s: %s\n", id, summary.Errors[id])
	}
}

// RunBooks searches the book catalog.
func RunBooks(ctx context.Context, params RunParams, flags *pflag.FlagSet, query string) error {
	s, err := openSession(ctx, params, flags)
	if err != nil {
		return err
	}
	defer s.close()

	limit := intFlag(flags, "limit", analysis.DefaultBookLimit)
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	entries, total, err := s.corpus.SearchBooks(query, limit)
	if err != nil {
		return err
	}
	return s.renderer.RenderBooks(s.out, entries, total)
}

// RunFetch downloads every missing book, regardless of the fetch setting.
func RunFetch(ctx context.Context, params RunParams, flags *pflag.FlagSet) error {
	s, err := openSession(ctx, params, flags, func(settings *config.Settings) {
		settings.Corpus.Fetch.Enabled = true
	})
	if err != nil {
		return err
	}
	defer s.close()

	summary, err := s.corpus.Summary(ctx)
	if err != nil {
		return err
	}
	printSummary(s.out, summary)
	if n := len(summary.Errors); n > 0 {
		return fmt.Errorf("%d book(s) could not be downloaded", n)
	}
	return nil
}

// RunClearCache deletes downloaded books, the catalog and the manifest.
func RunClearCache(ctx context.Context, params RunParams, flags *pflag.FlagSet) error {
	settings, err := setup(params, flags)
	if err != nil {
		return err
	}
	if err := params.ClearCache(&settings.Corpus); err != nil {
		return err
	}
	fmt.Fprintf(output(params), "Cache cleared: %s\n", settings.Corpus.DataDir)
	return nil
}

// RunServe exposes the analysis tools over MCP
func RunServe(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := setup(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting ngram-viewer MCP server", "version", version)
	config.LogServer(settings, slog.Default())

	mcpServer, cleanup, err := params.CreateServer(ctx, settings, version)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if settings.Transport == config.TransportSSE {
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(ctx, mcpServer, settings)
	}

	// Use custom transport if provided (for testing), otherwise use stdio
	transport := params.CustomIOTransport
	if transport == nil {
		transport = &mcp.StdioTransport{}
	}
	return mcpServer.Run(ctx, transport)
}

// CreateMCPServer opens the corpus and creates the MCP server with registered tools
func CreateMCPServer(ctx context.Context, settings *config.Settings, version string) (*mcp.Server, func(), error) {
	defaults, err := toolDefaults(settings)
	if err != nil {
		return nil, nil, err
	}

	c, err := OpenCorpus(ctx, &settings.Corpus)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := c.Close(); err != nil {
			slog.Error("Failed to close corpus", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:     ServerName,
		Version:  version,
		Analyzer: newAnalyzer(settings, c),
		Defaults: defaults,
	})
	return server, cleanup, nil
}

// intFlag returns the value of an optional int flag, or def when it is not registered.
func intFlag(flags *pflag.FlagSet, name string, def int) int {
	if flags == nil || flags.Lookup(name) == nil {
		return def
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return def
	}
	return v
}
