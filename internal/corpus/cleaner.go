package corpus

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Project Gutenberg boilerplate markers, checked in order.
var (
	gutenbergStartMarkers = []string{
		"*** START OF THE PROJECT GUTENBERG EBOOK",
		"*** START OF THIS PROJECT GUTENBERG EBOOK",
		"***START OF THE PROJECT GUTENBERG EBOOK",
	}

	gutenbergEndMarkers = []string{
		"*** END OF THE PROJECT GUTENBERG EBOOK",
		"*** END OF THIS PROJECT GUTENBERG EBOOK",
		"***END OF THE PROJECT GUTENBERG EBOOK",
		"End of the Project Gutenberg EBook",
		"End of Project Gutenberg's",
	}
)

var artifactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)CHAPTER [IVXLC]+\.?\s*`),
	regexp.MustCompile(`(?i)Chapter \d+\.?\s*`),
	regexp.MustCompile(`\[Pg \d+\]`),
	regexp.MustCompile(`Page \d+`),
	regexp.MustCompile(`\[Illustration[^\]]*\]`),
	regexp.MustCompile(`\[\d+\]`),
}

// StripGutenberg removes the Project Gutenberg header and footer.
// The content starts on the line after the first start marker and ends before the first end marker.
func StripGutenberg(text string) string {
	start := 0
	for _, marker := range gutenbergStartMarkers {
		if pos := strings.Index(text, marker); pos != -1 {
			if nl := strings.IndexByte(text[pos:], '\n'); nl != -1 {
				start = pos + nl + 1
			}
			break
		}
	}

	end := len(text)
	for _, marker := range gutenbergEndMarkers {
		if pos := strings.Index(text, marker); pos != -1 {
			end = pos
			break
		}
	}

	if start > end {
		return ""
	}
	return strings.TrimSpace(text[start:end])
}

// RemoveArtifacts removes chapter headings, page markers, illustration tags and footnote references.
func RemoveArtifacts(text string) string {
	for _, re := range artifactPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

func isNotWordRune(r rune) bool {
	return !isWordRune(r)
}

// Words splits text into its word-character runs.
func Words(text string) []string {
	return strings.FieldsFunc(text, isNotWordRune)
}

// CountWords returns the number of words in text.
func CountWords(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if isWordRune(r) {
			if !inWord {
				n++
			}
			inWord = true
		} else {
			inWord = false
		}
	}
	return n
}

// Normalize lowercases text and rewrites it as its words joined by single spaces.
// Punctuation and line breaks therefore never prevent a multi-word pattern from matching.
func Normalize(text string) string {
	return strings.Join(Words(strings.ToLower(text)), " ")
}

// NormalizePattern applies the corpus normalization to a search pattern.
func NormalizePattern(pattern string) string {
	return Normalize(pattern)
}

// FullClean strips boilerplate and artifacts, then normalizes.
func FullClean(text string) string {
	return Normalize(RemoveArtifacts(StripGutenberg(text)))
}

// Prepare turns downloaded or inline book content into searchable text.
// HTML pages are reduced to their visible text first.
func Prepare(raw []byte, normalize bool) string {
	text := string(raw)
	if LooksLikeHTML(raw) {
		text = ExtractHTMLText(text)
	}
	if normalize {
		return FullClean(text)
	}
	return strings.TrimSpace(RemoveArtifacts(StripGutenberg(text)))
}

// LooksLikeHTML reports whether content starts like an HTML document.
func LooksLikeHTML(content []byte) bool {
	head := bytes.TrimSpace(content[:min(len(content), 512)])
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	lower := bytes.ToLower(head)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

// ExtractHTMLText returns the visible text of an HTML document, one line per text node.
func ExtractHTMLText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)
	return sb.String()
}

// IsBinary checks if content appears to be binary by looking for null bytes
// in the first 512 bytes.
func IsBinary(content []byte) bool {
	return bytes.IndexByte(content[:min(len(content), 512)], 0) != -1
}
