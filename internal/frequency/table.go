// Package frequency aggregates pattern occurrence counts over time buckets.
package frequency

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownLevel is returned when a bucket level name is not recognized.
var ErrUnknownLevel = errors.New("unknown bucket level")

// Level selects the width of a time bucket.
type Level int

const (
	// Year buckets counts by publication year.
	Year Level = iota + 1
	// Decade buckets counts by year - year%10.
	Decade
)

// String returns the CLI name of the level.
func (l Level) String() string {
	switch l {
	case Year:
		return "year"
	case Decade:
		return "decade"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel resolves a bucket level name.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "year", "years", "yearly":
		return Year, nil
	case "decade", "decades":
		return Decade, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected year or decade)", ErrUnknownLevel, name)
	}
}

// DecadeOf returns the first year of the decade containing year.
func DecadeOf(year int) int {
	d := year - year%10
	if year%10 < 0 {
		d -= 10
	}
	return d
}

// Bucket is one entry of a Table.
type Bucket struct {
	Key   int `json:"key"`
	Count int `json:"count"`
}

// Table maps bucket keys to counts. Buckets are kept in ascending key order.
// A Table is immutable once built.
type Table struct {
	buckets []Bucket
}

// NewTable builds a Table from a key to count map.
func NewTable(counts map[int]int) Table {
	buckets := make([]Bucket, 0, len(counts))
	for k, c := range counts {
		buckets = append(buckets, Bucket{Key: k, Count: c})
	}
	slices.SortFunc(buckets, func(a, b Bucket) int { return a.Key - b.Key })
	return Table{buckets: buckets}
}

// Buckets returns a copy of the buckets in ascending key order.
func (t Table) Buckets() []Bucket {
	return slices.Clone(t.buckets)
}

// Keys returns the bucket keys in ascending order.
func (t Table) Keys() []int {
	keys := make([]int, len(t.buckets))
	for i, b := range t.buckets {
		keys[i] = b.Key
	}
	return keys
}

// Get returns the count for key and whether the bucket exists.
func (t Table) Get(key int) (int, bool) {
	i, found := slices.BinarySearchFunc(t.buckets, key, func(b Bucket, k int) int { return b.Key - k })
	if !found {
		return 0, false
	}
	return t.buckets[i].Count, true
}

// Len returns the number of buckets.
func (t Table) Len() int {
	return len(t.buckets)
}

// Total returns the sum of all counts.
func (t Table) Total() int {
	total := 0
	for _, b := range t.buckets {
		total += b.Count
	}
	return total
}

// Max returns the largest count, or 0 for an empty table.
func (t Table) Max() int {
	m := 0
	for _, b := range t.buckets {
		m = max(m, b.Count)
	}
	return m
}

// Map returns the table as a plain map.
func (t Table) Map() map[int]int {
	m := make(map[int]int, len(t.buckets))
	for _, b := range t.buckets {
		m[b.Key] = b.Count
	}
	return m
}

// Decades re-buckets a year-level table by decade.
func (t Table) Decades() Table {
	counts := make(map[int]int)
	for _, b := range t.buckets {
		counts[DecadeOf(b.Key)] += b.Count
	}
	return NewTable(counts)
}
