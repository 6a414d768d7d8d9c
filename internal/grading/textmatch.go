package grading

import "unicode"

// normalize casefolds, drops punctuation and collapses whitespace.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// levenshtein is the edit distance with unit costs.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := range dp {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			dp[j] = min(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[m]
}

type matchKind int

const (
	noMatch matchKind = iota
	fuzzyMatch
	exactMatch
)

// matchText compares a response against accepted spellings after
// normalization. maxEdit <= 0 disables fuzzy matching.
func matchText(response string, accepted []string, maxEdit int) matchKind {
	resp := normalize(response)
	best := noMatch
	for _, k := range accepted {
		nk := normalize(k)
		if nk == resp {
			return exactMatch
		}
		if maxEdit > 0 && levenshtein(nk, resp) <= maxEdit {
			best = fuzzyMatch
		}
	}
	return best
}
