package match

// KMPMatcher implements Knuth-Morris-Pratt matching.
type KMPMatcher struct {
	pattern string
	prefix  []int
}

// NewKMP creates a KMP matcher, precomputing the prefix function of pattern.
func NewKMP(pattern string) (*KMPMatcher, error) {
	if pattern == "" {
		return nil, ErrInvalidPattern
	}
	return &KMPMatcher{
		pattern: pattern,
		prefix:  prefixFunction(pattern),
	}, nil
}

// prefixFunction returns f where f[i] is the length of the longest proper
// prefix of p[:i+1] that is also its suffix.
func prefixFunction(p string) []int {
	f := make([]int, len(p))
	k := 0
	for i := 1; i < len(p); i++ {
		for k > 0 && p[i] != p[k] {
			k = f[k-1]
		}
		if p[i] == p[k] {
			k++
		}
		f[i] = k
	}
	return f
}

// Occurrences scans text once; the text cursor never moves backwards.
func (m *KMPMatcher) Occurrences(text string) []int {
	n := len(m.pattern)
	if n > len(text) {
		return nil
	}

	var out []int
	matched := 0
	for i := 0; i < len(text); i++ {
		for matched > 0 && text[i] != m.pattern[matched] {
			matched = m.prefix[matched-1]
		}
		if text[i] == m.pattern[matched] {
			matched++
		}
		if matched == n {
			out = append(out, i-n+1)
			// Fall back instead of resetting so overlapping matches are found.
			matched = m.prefix[matched-1]
		}
	}
	return out
}

// Pattern returns the matcher's pattern.
func (m *KMPMatcher) Pattern() string {
	return m.pattern
}

// Kind returns KMP.
func (m *KMPMatcher) Kind() Kind {
	return KMP
}
