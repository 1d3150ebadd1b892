package feedback

import "tg-sentinel/internal/classifier"

// Similarity measures token-set overlap between two messages using the
// Jaccard coefficient over normalized tokens. Identical content scores 1.0,
// disjoint content 0.0.
func Similarity(a, b string) float64 {
	setA := tokenSet(classifier.Tokenize(a))
	setB := tokenSet(classifier.Tokenize(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}
