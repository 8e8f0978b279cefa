package cascade

import "strings"

// tokenize lowercases a title, drops non-alphanumeric characters, splits
// on whitespace, and discards stop words and tokens of length <= 2. The
// result is the title's comparison set.
func tokenize(title string, stop map[string]struct{}) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		if r == ' ' || r == '\t' || r == '\n' {
			return ' '
		}
		return -1
	}, strings.ToLower(title))

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, skip := stop[tok]; skip {
			continue
		}
		tokens[tok] = struct{}{}
	}
	return tokens
}

// overlap returns the share of tokens two sets have in common, normalized
// by the larger set. Intentionally crude: token overlap is the sole
// cross-item correlation signal, with no semantic matching behind it.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(large))
}
