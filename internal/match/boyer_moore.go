package match

// BoyerMooreMatcher implements Boyer-Moore matching with the bad-character
// rule only. The good-suffix rule would lengthen some shifts but never
// changes the reported occurrences.
type BoyerMooreMatcher struct {
	pattern string
	// last holds the rightmost index of each byte value in pattern, or -1.
	last [256]int
}

// NewBoyerMoore creates a Boyer-Moore matcher, precomputing the
// last-occurrence table of pattern.
func NewBoyerMoore(pattern string) (*BoyerMooreMatcher, error) {
	if pattern == "" {
		return nil, ErrInvalidPattern
	}
	m := &BoyerMooreMatcher{pattern: pattern}
	for i := range m.last {
		m.last[i] = -1
	}
	for i := 0; i < len(pattern); i++ {
		m.last[pattern[i]] = i
	}
	return m, nil
}

// Occurrences compares each window right-to-left and skips ahead on a
// mismatch. After a full match the window advances by exactly one so that
// overlapping occurrences are reported, the same as KMP.
func (m *BoyerMooreMatcher) Occurrences(text string) []int {
	n := len(m.pattern)
	if n > len(text) {
		return nil
	}

	var out []int
	for shift := 0; shift <= len(text)-n; {
		j := n - 1
		for j >= 0 && m.pattern[j] == text[shift+j] {
			j--
		}
		if j < 0 {
			out = append(out, shift)
			shift++
			continue
		}
		shift += max(1, j-m.last[text[shift+j]])
	}
	return out
}

// LastOccurrence returns the rightmost index of c in the pattern, or -1.
func (m *BoyerMooreMatcher) LastOccurrence(c byte) int {
	return m.last[c]
}

// Pattern returns the matcher's pattern.
func (m *BoyerMooreMatcher) Pattern() string {
	return m.pattern
}

// Kind returns BoyerMoore.
func (m *BoyerMooreMatcher) Kind() Kind {
	return BoyerMoore
}
