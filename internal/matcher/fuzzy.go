package matcher

import (
	"sort"
	"strings"
)

// TokenSortRatio returns a similarity score in [0,1] between two
// strings after lowercasing, tokenizing and sorting the tokens. Word
// order therefore does not matter: "Thunder at Rockets" and "Rockets
// vs Thunder" score high.
func TokenSortRatio(a, b string) float64 {
	na, nb := normalizeTokens(a), normalizeTokens(b)
	if na == "" && nb == "" {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	dist := levenshtein(na, nb)
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	return 1 - float64(dist)/float64(longest)
}

func normalizeTokens(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
