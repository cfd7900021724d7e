// Package chart renders frequency tables and corpus reports as terminal text.
package chart

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/padding"
	"github.com/muesli/reflow/truncate"
	"github.com/sha1n/ngram-viewer/internal/domain"
	"github.com/sha1n/ngram-viewer/internal/frequency"
	"golang.org/x/term"
)

const (
	// DefaultWidth is the bar width used when no width is configured and stdout is not a terminal
	DefaultWidth = 40

	// BarRune fills chart bars
	BarRune = "█"

	// ruleWidth is the width of the title underline
	ruleWidth = 60

	// labelMargin is the room reserved for labels and values when sizing to the terminal
	labelMargin = 20
)

// Options configures a Renderer.
type Options struct {
	Width int
	Color bool
}

// Point is one bar of a chart.
type Point struct {
	Key   int
	Value float64
}

// Series is a bucketed frequency result ready for plotting.
type Series struct {
	Pattern string
	Level   frequency.Level
	Points  []Point

	// Rates marks values as occurrences per million words rather than raw counts.
	Rates bool
}

// Timing is the measured duration of one algorithm run.
type Timing struct {
	Name     string
	Duration time.Duration
}

// Renderer writes charts with a fixed style.
type Renderer struct {
	width int
	title lipgloss.Style
	bar   lipgloss.Style
	muted lipgloss.Style
}

// NewRenderer creates a renderer. A non-positive width uses DefaultWidth.
func NewRenderer(opts Options) *Renderer {
	r := &Renderer{
		width: opts.Width,
		title: lipgloss.NewStyle(),
		bar:   lipgloss.NewStyle(),
		muted: lipgloss.NewStyle(),
	}
	if r.width <= 0 {
		r.width = DefaultWidth
	}
	if opts.Color {
		r.title = r.title.Bold(true)
		r.bar = r.bar.Foreground(lipgloss.Color("39"))
		r.muted = r.muted.Foreground(lipgloss.Color("245"))
	}
	return r
}

// Width returns the bar width.
func (r *Renderer) Width() int {
	return r.width
}

// ResolveWidth returns the configured width, or sizes the chart to the terminal behind f.
func ResolveWidth(configured int, f *os.File) int {
	if configured > 0 {
		return configured
	}
	if f == nil {
		return DefaultWidth
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return DefaultWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= labelMargin {
		return DefaultWidth
	}
	return min(width-labelMargin, 200)
}

// Label formats a bucket key: "1990s" for decades, "1999" for years.
func Label(key int, level frequency.Level) string {
	if level == frequency.Decade {
		return strconv.Itoa(key) + "s"
	}
	return strconv.Itoa(key)
}

// FormatValue formats a bar value. Rates get fewer decimals as they grow.
func FormatValue(v float64, rate bool) string {
	if !rate {
		return strconv.FormatInt(int64(v), 10)
	}
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.0f", v)
	case v >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// Render draws one bar per point, scaled so the largest value spans the full width.
func (r *Renderer) Render(w io.Writer, s Series) error {
	if len(s.Points) == 0 {
		_, err := fmt.Fprintln(w, "No results to plot")
		return err
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(r.title.Render(fmt.Sprintf("Ngram results for '%s':", s.Pattern)))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	maxValue := 0.0
	labelWidth := 0
	for _, p := range s.Points {
		maxValue = max(maxValue, p.Value)
		labelWidth = max(labelWidth, len(Label(p.Key, s.Level))+1)
	}

	if maxValue == 0 {
		sb.WriteString("No occurrences found\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	for _, p := range s.Points {
		n := int(p.Value / maxValue * float64(r.width))
		bar := strings.Repeat(BarRune, n) + strings.Repeat(" ", r.width-n)
		label := padding.String(Label(p.Key, s.Level)+":", uint(labelWidth))
		fmt.Fprintf(&sb, "%s %s %s\n", label, r.bar.Render(bar), FormatValue(p.Value, s.Rates))
	}

	sb.WriteString("\n")
	if s.Rates {
		sb.WriteString(r.muted.Render("Frequency = occurrences per million words"))
	} else {
		sb.WriteString(r.muted.Render("Frequency = total occurrences"))
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderSummary lists the number of books per decade and the total.
func (r *Renderer) RenderSummary(w io.Writer, decades map[int]int) error {
	keys := make([]int, 0, len(decades))
	for k := range decades {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(r.title.Render("Books analyzed:"))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")

	total := 0
	for _, decade := range keys {
		count := decades[decade]
		total += count
		fmt.Fprintf(&sb, "%ds: %d %s\n", decade, count, plural(count, "book", "books"))
	}
	fmt.Fprintf(&sb, "\nTotal: %d %s\n", total, plural(total, "book", "books"))

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderComparison prints algorithm timings and which one was faster.
func (r *Renderer) RenderComparison(w io.Writer, patternLength int, timings []Timing) error {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(r.title.Render("Algorithm Performance Comparison:"))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Pattern length: %d %s\n", patternLength, plural(patternLength, "character", "characters"))

	for _, t := range timings {
		fmt.Fprintf(&sb, "%s %.4f seconds\n", padding.String(t.Name+":", 15), t.Duration.Seconds())
	}

	if line := SpeedupLine(timings); line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// SpeedupLine reports how much faster the quickest run was than the slowest.
// Returns "" when fewer than two runs have a measurable duration.
func SpeedupLine(timings []Timing) string {
	if len(timings) < 2 {
		return ""
	}
	fastest, slowest := timings[0], timings[0]
	for _, t := range timings {
		if t.Duration <= 0 {
			return ""
		}
		if t.Duration < fastest.Duration {
			fastest = t
		}
		if t.Duration > slowest.Duration {
			slowest = t
		}
	}
	speedup := float64(slowest.Duration) / float64(fastest.Duration)
	return fmt.Sprintf("%s is %.2fx faster", fastest.Name, speedup)
}

// FormatBookInfo pads or truncates a title to maxWidth and appends the year.
func FormatBookInfo(title string, year int, maxWidth int) string {
	if maxWidth <= 3 {
		maxWidth = 50
	}
	if lipgloss.Width(title) > maxWidth {
		title = truncate.StringWithTail(title, uint(maxWidth), "...")
	}
	return fmt.Sprintf("%s (%d)", padding.String(title, uint(maxWidth)), year)
}

// RenderBooks lists catalog entries, one per line.
func (r *Renderer) RenderBooks(w io.Writer, entries []domain.CatalogEntry, total uint64) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No books found")
		return err
	}

	var sb strings.Builder
	idWidth := 0
	for _, e := range entries {
		idWidth = max(idWidth, len(e.ID))
	}
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s  %s  %s\n",
			padding.String(e.ID, uint(idWidth)),
			FormatBookInfo(domain.BookLabel(e.Title, e.Author), e.Year, 50),
			r.muted.Render(fmt.Sprintf("%d words", e.Words)))
	}
	if total > uint64(len(entries)) {
		fmt.Fprintf(&sb, "... and %d more\n", total-uint64(len(entries)))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderMatches prints keyword-in-context lines for a document.
func (r *Renderer) RenderMatches(w io.Writer, heading string, total int, snippets []domain.Snippet) error {
	var sb strings.Builder
	sb.WriteString(r.title.Render(heading))
	sb.WriteString("\n")

	if total == 0 {
		sb.WriteString("No occurrences found\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	offsetWidth := 0
	for _, s := range snippets {
		offsetWidth = max(offsetWidth, len(strconv.Itoa(s.Offset)))
	}
	for _, s := range snippets {
		fmt.Fprintf(&sb, "%s  ...%s%s%s...\n",
			padding.String(strconv.Itoa(s.Offset), uint(offsetWidth)),
			s.Before, r.bar.Render("["+s.Match+"]"), s.After)
	}
	if total > len(snippets) {
		fmt.Fprintf(&sb, "... and %d more\n", total-len(snippets))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
