package ui

import (
	"sort"
	"strings"
)

// MaxDistance is the largest edit distance still offered as a suggestion
const MaxDistance = 3

// Suggest returns up to limit candidates closest to target, nearest first
func Suggest(target string, candidates []string, limit int) []string {
	type match struct {
		value    string
		distance int
	}

	var matches []match
	for _, candidate := range candidates {
		d := Distance(strings.ToLower(target), strings.ToLower(candidate))
		if d <= MaxDistance {
			matches = append(matches, match{value: candidate, distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	result := make([]string, 0, limit)
	for i := 0; i < len(matches) && i < limit; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// Distance returns the Levenshtein distance between a and b
func Distance(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
