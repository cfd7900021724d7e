// Package match provides exact single-pattern string matching.
//
// Two interchangeable algorithms are available behind the Matcher interface:
// Knuth-Morris-Pratt and Boyer-Moore (bad-character rule). Both report every
// start offset of the pattern, overlapping occurrences included, and must
// agree on every input.
package match

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPattern is returned when a matcher is built for an empty pattern.
	ErrInvalidPattern = errors.New("pattern cannot be empty")

	// ErrUnsupportedAlgorithm is returned for an unknown algorithm kind.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// Kind identifies a matching algorithm.
type Kind int

const (
	// KMP selects the Knuth-Morris-Pratt matcher.
	KMP Kind = iota + 1
	// BoyerMoore selects the Boyer-Moore matcher.
	BoyerMoore
)

// Kinds lists every supported algorithm in display order.
func Kinds() []Kind {
	return []Kind{KMP, BoyerMoore}
}

// String returns the canonical CLI name of the algorithm.
func (k Kind) String() string {
	switch k {
	case KMP:
		return "kmp"
	case BoyerMoore:
		return "boyer-moore"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DisplayName returns a human readable algorithm name.
func (k Kind) DisplayName() string {
	switch k {
	case KMP:
		return "KMP"
	case BoyerMoore:
		return "Boyer-Moore"
	default:
		return k.String()
	}
}

// ParseKind resolves an algorithm name. Matching is case-insensitive and
// accepts the common aliases "bm" and "boyer_moore".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kmp", "knuth-morris-pratt":
		return KMP, nil
	case "boyer-moore", "boyer_moore", "boyermoore", "bm":
		return BoyerMoore, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected kmp or boyer-moore)", ErrUnsupportedAlgorithm, name)
	}
}

// Matcher finds every occurrence of the pattern it was built with.
type Matcher interface {
	// Occurrences returns the ascending byte offsets of every position where
	// the pattern starts in text. Overlapping occurrences are all reported.
	// A pattern longer than text yields no occurrences.
	Occurrences(text string) []int

	// Pattern returns the pattern fixed at construction.
	Pattern() string

	// Kind reports the algorithm implementing the matcher.
	Kind() Kind
}

// New builds a matcher of the given kind.
func New(kind Kind, pattern string) (Matcher, error) {
	switch kind {
	case KMP:
		m, err := NewKMP(pattern)
		if err != nil {
			return nil, err
		}
		return m, nil
	case BoyerMoore:
		m, err := NewBoyerMoore(pattern)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, kind)
	}
}

// Reference is a brute-force O(n*m) scan. It is the oracle the optimized
// matchers are verified against.
func Reference(pattern, text string) []int {
	if pattern == "" || len(pattern) > len(text) {
		return nil
	}
	var out []int
	for i := 0; i+len(pattern) <= len(text); i++ {
		if text[i:i+len(pattern)] == pattern {
			out = append(out, i)
		}
	}
	return out
}
