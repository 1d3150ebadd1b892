// Package classifier matches message content against weighted violation
// signatures. Classification is a pure function of the content and the
// signature store; the only mutation path into the store is the bounded
// weight nudging driven by moderator verdicts.
package classifier

import (
	"regexp"
	"sync"

	"tg-sentinel/internal/models"
)

const (
	// MinWeight and MaxWeight bound signature weights under feedback nudging.
	MinWeight = 0.05
	MaxWeight = 1.0
)

// Signature is one weighted pattern inside a category. A signature matches
// when all its tokens appear in the message token set, or when its regex
// matches the raw content.
type Signature struct {
	ID      string
	Tokens  []string
	Pattern *regexp.Regexp
	Weight  float64
}

func (s *Signature) matches(raw string, tokens map[string]bool) bool {
	if s.Pattern != nil {
		return s.Pattern.MatchString(raw)
	}
	if len(s.Tokens) == 0 {
		return false
	}
	for _, tok := range s.Tokens {
		if !tokens[tok] {
			return false
		}
	}
	return true
}

// categorySet groups the signatures of one violation type with its base severity.
type categorySet struct {
	Type       models.ViolationType
	Severity   int
	Signatures []*Signature
}

// Context carries the event context relevant to classification.
type Context struct {
	DirectMessage bool
}

// Classification is the classifier output: the winning category with its
// accumulated confidence, or a none result below the activation threshold.
type Classification struct {
	Type       models.ViolationType
	Severity   int
	Confidence float64
	Matched    []string
}

// None reports whether no violation was found.
func (c Classification) None() bool {
	return c.Type == models.ViolationNone
}

// SignatureStore holds the per-category signature sets.
type SignatureStore struct {
	categories map[models.ViolationType]*categorySet
	activation float64
	mu         sync.RWMutex
}

// NewSignatureStore creates an empty store with the given activation threshold.
func NewSignatureStore(activationThreshold float64) *SignatureStore {
	return &SignatureStore{
		categories: make(map[models.ViolationType]*categorySet),
		activation: activationThreshold,
	}
}

// AddCategory registers a violation category with its base severity.
func (s *SignatureStore) AddCategory(t models.ViolationType, severity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[t]; !ok {
		s.categories[t] = &categorySet{Type: t, Severity: severity}
	}
}

// AddSignature appends a signature to a category. The category must exist.
func (s *SignatureStore) AddSignature(t models.ViolationType, sig *Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[t]
	if !ok {
		return
	}
	cat.Signatures = append(cat.Signatures, sig)
}

// Severity returns the configured base severity for a category, 1 if unknown.
func (s *SignatureStore) Severity(t models.ViolationType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cat, ok := s.categories[t]; ok {
		return cat.Severity
	}
	return 1
}

// Nudge adjusts one signature's weight by delta, clamped to the sane range.
// Returns false if no signature has that ID.
func (s *SignatureStore) Nudge(sigID string, delta float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range s.categories {
		for _, sig := range cat.Signatures {
			if sig.ID == sigID {
				sig.Weight += delta
				if sig.Weight < MinWeight {
					sig.Weight = MinWeight
				}
				if sig.Weight > MaxWeight {
					sig.Weight = MaxWeight
				}
				return true
			}
		}
	}
	return false
}

// Weight returns a signature's current weight, for inspection.
func (s *SignatureStore) Weight(sigID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cat := range s.categories {
		for _, sig := range cat.Signatures {
			if sig.ID == sigID {
				return sig.Weight, true
			}
		}
	}
	return 0, false
}

// Classify matches content against every category and returns the
// highest-confidence result above the activation threshold, or a none result.
// Signatures are additive within a category: multiple partial matches raise
// confidence, capped at 1.0. Equal confidence between two categories is
// broken in favor of the higher base severity. Malformed or empty content
// degrades to none, never to an error.
func (s *SignatureStore) Classify(content string, _ Context) Classification {
	none := Classification{Type: models.ViolationNone, Severity: 0, Confidence: 0}
	if content == "" {
		return none
	}
	tokens := tokenSet(Tokenize(content))
	if len(tokens) == 0 {
		return none
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := none
	for _, cat := range s.categories {
		var confidence float64
		var matched []string
		for _, sig := range cat.Signatures {
			if sig.matches(content, tokens) {
				confidence += sig.Weight
				matched = append(matched, sig.ID)
			}
		}
		if confidence > MaxWeight {
			confidence = MaxWeight
		}
		if confidence < s.activation {
			continue
		}
		if confidence > best.Confidence ||
			(confidence == best.Confidence && cat.Severity > best.Severity) {
			best = Classification{
				Type:       cat.Type,
				Severity:   cat.Severity,
				Confidence: confidence,
				Matched:    matched,
			}
		}
	}
	return best
}
