package chart

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sha1n/ngram-viewer/internal/domain"
	"github.com/sha1n/ngram-viewer/internal/frequency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainRenderer(width int) *Renderer {
	return NewRenderer(Options{Width: width, Color: false})
}

func TestRender_DecadeCounts(t *testing.T) {
	var buf bytes.Buffer
	err := plainRenderer(10).Render(&buf, Series{
		Pattern: "whale",
		Level:   frequency.Decade,
		Points:  []Point{{Key: 1990, Value: 2}, {Key: 2000, Value: 0}, {Key: 2010, Value: 1}},
	})
	require.NoError(t, err)

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "Ngram results for 'whale':", lines[1])
	assert.Equal(t, strings.Repeat("=", 60), lines[2])
	assert.Equal(t, "1990s: "+strings.Repeat(BarRune, 10)+" 2", lines[3])
	assert.Equal(t, "2000s: "+strings.Repeat(" ", 10)+" 0", lines[4])
	assert.Equal(t, "2010s: "+strings.Repeat(BarRune, 5)+strings.Repeat(" ", 5)+" 1", lines[5])
	assert.Contains(t, buf.String(), "Frequency = total occurrences")
}

func TestRender_YearLabelsAreAligned(t *testing.T) {
	var buf bytes.Buffer
	err := plainRenderer(4).Render(&buf, Series{
		Pattern: "x",
		Level:   frequency.Year,
		Points:  []Point{{Key: 999, Value: 1}, {Key: 1999, Value: 4}},
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "999:  █    1\n")
	assert.Contains(t, buf.String(), "1999: ████ 4\n")
}

func TestRender_Rates(t *testing.T) {
	var buf bytes.Buffer
	err := plainRenderer(40).Render(&buf, Series{
		Pattern: "the",
		Level:   frequency.Decade,
		Points:  []Point{{Key: 1810, Value: 52341.7}, {Key: 1850, Value: 12.34}, {Key: 1860, Value: 0.5}},
		Rates:   true,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, " 52342\n")
	assert.Contains(t, out, " 12.3\n")
	assert.Contains(t, out, " 0.50\n")
	assert.Contains(t, out, "Frequency = occurrences per million words")
}

func TestRender_NoOccurrences(t *testing.T) {
	var buf bytes.Buffer
	err := plainRenderer(10).Render(&buf, Series{
		Pattern: "zzz",
		Level:   frequency.Decade,
		Points:  []Point{{Key: 1990, Value: 0}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No occurrences found")
	assert.NotContains(t, buf.String(), BarRune)
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, plainRenderer(10).Render(&buf, Series{Pattern: "x"}))
	assert.Equal(t, "No results to plot\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "3", FormatValue(3, false))
	assert.Equal(t, "1235", FormatValue(1234.6, true))
	assert.Equal(t, "10.0", FormatValue(10, true))
	assert.Equal(t, "9.99", FormatValue(9.99, true))
	assert.Equal(t, "0.00", FormatValue(0, true))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "1990s", Label(1990, frequency.Decade))
	assert.Equal(t, "1999", Label(1999, frequency.Year))
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, plainRenderer(0).RenderSummary(&buf, map[int]int{1850: 1, 1810: 2}))

	out := buf.String()
	assert.Contains(t, out, "Books analyzed:")
	assert.Less(t, strings.Index(out, "1810s: 2 books"), strings.Index(out, "1850s: 1 book\n"))
	assert.Contains(t, out, "Total: 3 books")
}

func TestRenderComparison(t *testing.T) {
	var buf bytes.Buffer
	err := plainRenderer(0).RenderComparison(&buf, 5, []Timing{
		{Name: "KMP", Duration: 30 * time.Millisecond},
		{Name: "Boyer-Moore", Duration: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Pattern length: 5 characters")
	assert.Contains(t, out, "KMP:            0.0300 seconds")
	assert.Contains(t, out, "Boyer-Moore:    0.0100 seconds")
	assert.Contains(t, out, "Boyer-Moore is 3.00x faster")
}

func TestSpeedupLine(t *testing.T) {
	assert.Empty(t, SpeedupLine(nil))
	assert.Empty(t, SpeedupLine([]Timing{{Name: "a", Duration: time.Second}}))
	assert.Empty(t, SpeedupLine([]Timing{{Name: "a", Duration: time.Second}, {Name: "b", Duration: 0}}))
	assert.Equal(t, "a is 2.00x faster", SpeedupLine([]Timing{{Name: "a", Duration: time.Second}, {Name: "b", Duration: 2 * time.Second}}))
}

func TestFormatBookInfo(t *testing.T) {
	short := FormatBookInfo("Emma", 1815, 10)
	assert.Equal(t, "Emma       (1815)", short)

	long := FormatBookInfo("The Life and Opinions of Tristram Shandy", 1759, 20)
	assert.Equal(t, "The Life and Opin... (1759)", long)
}

func TestRenderBooks(t *testing.T) {
	var buf bytes.Buffer
	entries := []domain.CatalogEntry{
		{ID: "84", Title: "Frankenstein", Author: "Mary Shelley", Year: 1818, Words: 75000},
		{ID: "1342", Title: "Pride and Prejudice", Author: "Jane Austen", Year: 1813, Words: 120000},
	}
	require.NoError(t, plainRenderer(0).RenderBooks(&buf, entries, 5))

	out := buf.String()
	assert.Contains(t, out, "84    Frankenstein by Mary Shelley")
	assert.Contains(t, out, "(1818)  75000 words")
	assert.Contains(t, out, "... and 3 more")

	buf.Reset()
	require.NoError(t, plainRenderer(0).RenderBooks(&buf, nil, 0))
	assert.Equal(t, "No books found\n", buf.String())
}

func TestRenderMatches(t *testing.T) {
	var buf bytes.Buffer
	snippets := []domain.Snippet{
		{Offset: 4, Before: "the ", Match: "whale", After: " swam"},
		{Offset: 120, Before: "a ", Match: "whale", After: ""},
	}
	require.NoError(t, plainRenderer(0).RenderMatches(&buf, "Moby Dick", 3, snippets))

	out := buf.String()
	assert.Contains(t, out, "Moby Dick\n")
	assert.Contains(t, out, "4    ...the [whale] swam...\n")
	assert.Contains(t, out, "120  ...a [whale]...\n")
	assert.Contains(t, out, "... and 1 more")
}

func TestRenderMatches_None(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, plainRenderer(0).RenderMatches(&buf, "Emma", 0, nil))
	assert.Contains(t, buf.String(), "No occurrences found")
}

func TestResolveWidth(t *testing.T) {
	assert.Equal(t, 25, ResolveWidth(25, nil))
	assert.Equal(t, DefaultWidth, ResolveWidth(0, nil))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, DefaultWidth, ResolveWidth(0, f), "regular files are not terminals")
}

func TestNewRenderer_DefaultWidth(t *testing.T) {
	assert.Equal(t, DefaultWidth, NewRenderer(Options{}).Width())
	assert.Equal(t, 12, NewRenderer(Options{Width: 12}).Width())
}
