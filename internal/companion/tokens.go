package companion

import "unicode/utf8"

// TokenEstimator returns an approximate token count for text.
type TokenEstimator func(text string) int

// EstimateTokens approximates tokens as ceil(characters / 4). It is a
// heuristic, not a tokenizer; Vietnamese text usually tokenizes denser.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
