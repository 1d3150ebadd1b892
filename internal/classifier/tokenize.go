package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tg-sentinel/internal/logger"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Tokenize splits free-form text into lower-cased, unicode-normalized tokens
// with combining marks folded away, so signature matching is not defeated by
// casing, punctuation, or diacritic tricks.
func Tokenize(text string) []string {
	// the transform chain must be rebuilt per call to avoid a race on its state
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(normFunc, bare)
	if err != nil {
		logger.Warningf("unicode normalization error: %v", err)
		folded = bare
	}
	return strings.Fields(folded)
}

// tokenSet builds a membership set from a token list.
func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}
