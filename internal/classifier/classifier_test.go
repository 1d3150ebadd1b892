package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tg-sentinel/internal/models"
)

func TestClassifyNoViolation(t *testing.T) {
	assert := assert.New(t)
	store := DefaultSignatureStore(0.35)

	fixtures := []string{
		"",
		"hello everyone, how is it going?",
		"does anyone know when the next meetup is",
	}
	for _, text := range fixtures {
		cls := store.Classify(text, Context{})
		assert.True(cls.None(), "expected none for: %q", text)
		assert.Equal(0.0, cls.Confidence)
	}
}

func TestClassifyScam(t *testing.T) {
	assert := assert.New(t)
	store := DefaultSignatureStore(0.35)

	cls := store.Classify("FREE crypto giveaway!! claim now, guaranteed profit", Context{})
	assert.Equal(models.ViolationScam, cls.Type)
	assert.Equal(5, cls.Severity)
	assert.GreaterOrEqual(cls.Confidence, 0.85)
	assert.NotEmpty(cls.Matched)
}

func TestClassifyAdditiveConfidence(t *testing.T) {
	assert := assert.New(t)
	store := NewSignatureStore(0.2)
	store.AddCategory(models.ViolationSpam, 2)
	store.AddSignature(models.ViolationSpam, &Signature{ID: "a", Tokens: []string{"alpha"}, Weight: 0.3})
	store.AddSignature(models.ViolationSpam, &Signature{ID: "b", Tokens: []string{"beta"}, Weight: 0.3})

	one := store.Classify("alpha only", Context{})
	both := store.Classify("alpha and beta", Context{})
	assert.InDelta(0.3, one.Confidence, 0.001)
	assert.InDelta(0.6, both.Confidence, 0.001)

	// confidence is capped at 1.0
	store.AddSignature(models.ViolationSpam, &Signature{ID: "c", Tokens: []string{"gamma"}, Weight: 0.9})
	capped := store.Classify("alpha beta gamma", Context{})
	assert.Equal(1.0, capped.Confidence)
}

func TestClassifyTieBreakPrefersSeverity(t *testing.T) {
	assert := assert.New(t)
	store := NewSignatureStore(0.2)
	store.AddCategory(models.ViolationSpam, 2)
	store.AddCategory(models.ViolationScam, 5)
	store.AddSignature(models.ViolationSpam, &Signature{ID: "low", Tokens: []string{"promo"}, Weight: 0.5})
	store.AddSignature(models.ViolationScam, &Signature{ID: "high", Tokens: []string{"promo"}, Weight: 0.5})

	cls := store.Classify("big promo today", Context{})
	assert.Equal(models.ViolationScam, cls.Type)
}

func TestClassifyNormalizesObfuscation(t *testing.T) {
	assert := assert.New(t)
	store := DefaultSignatureStore(0.35)

	// punctuation and diacritics should not defeat token matching
	cls := store.Classify("FRÉE crypto!!! guaranteed... profit", Context{})
	assert.Equal(models.ViolationScam, cls.Type)
}

func TestNudgeClampsWeight(t *testing.T) {
	assert := assert.New(t)
	store := NewSignatureStore(0.2)
	store.AddCategory(models.ViolationSpam, 2)
	store.AddSignature(models.ViolationSpam, &Signature{ID: "sig", Tokens: []string{"x"}, Weight: 0.1})

	for i := 0; i < 10; i++ {
		store.Nudge("sig", -0.05)
	}
	w, ok := store.Weight("sig")
	assert.True(ok)
	assert.Equal(MinWeight, w)

	for i := 0; i < 40; i++ {
		store.Nudge("sig", 0.05)
	}
	w, _ = store.Weight("sig")
	assert.Equal(MaxWeight, w)

	assert.False(store.Nudge("missing", 0.05))
}
