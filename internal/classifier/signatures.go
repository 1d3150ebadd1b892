package classifier

import (
	"regexp"

	"tg-sentinel/internal/models"
)

// DefaultSignatureStore seeds the store with the stock signature sets. Weights
// here are starting points; moderator verdicts move them over time.
func DefaultSignatureStore(activationThreshold float64) *SignatureStore {
	s := NewSignatureStore(activationThreshold)

	s.AddCategory(models.ViolationScam, 5)
	s.AddSignature(models.ViolationScam, &Signature{ID: "scam.free-crypto", Tokens: []string{"free", "crypto"}, Weight: 0.50})
	s.AddSignature(models.ViolationScam, &Signature{ID: "scam.giveaway-claim", Tokens: []string{"giveaway", "claim"}, Weight: 0.45})
	s.AddSignature(models.ViolationScam, &Signature{ID: "scam.double-money", Tokens: []string{"double", "your", "money"}, Weight: 0.60})
	s.AddSignature(models.ViolationScam, &Signature{ID: "scam.guaranteed-profit", Tokens: []string{"guaranteed", "profit"}, Weight: 0.55})
	s.AddSignature(models.ViolationScam, &Signature{ID: "scam.seed-phrase", Tokens: []string{"seed", "phrase"}, Weight: 0.55})
	s.AddSignature(models.ViolationScam, &Signature{ID: "scam.investment-dm", Tokens: []string{"investment", "dm", "me"}, Weight: 0.50})

	s.AddCategory(models.ViolationMalware, 5)
	s.AddSignature(models.ViolationMalware, &Signature{ID: "malware.executable-link", Pattern: regexp.MustCompile(`(?i)https?://\S+\.(exe|scr|bat|apk)\b`), Weight: 0.70})
	s.AddSignature(models.ViolationMalware, &Signature{ID: "malware.cracked", Tokens: []string{"cracked", "download"}, Weight: 0.45})
	s.AddSignature(models.ViolationMalware, &Signature{ID: "malware.token-grabber", Tokens: []string{"token", "grabber"}, Weight: 0.65})

	s.AddCategory(models.ViolationPhishing, 4)
	s.AddSignature(models.ViolationPhishing, &Signature{ID: "phishing.verify-account", Tokens: []string{"verify", "your", "account"}, Weight: 0.50})
	s.AddSignature(models.ViolationPhishing, &Signature{ID: "phishing.suspended", Tokens: []string{"account", "suspended"}, Weight: 0.45})
	s.AddSignature(models.ViolationPhishing, &Signature{ID: "phishing.login-link", Pattern: regexp.MustCompile(`(?i)https?://\S*(login|signin|verify)\S*`), Weight: 0.40})

	s.AddCategory(models.ViolationSpam, 2)
	s.AddSignature(models.ViolationSpam, &Signature{ID: "spam.buy-followers", Tokens: []string{"buy", "followers"}, Weight: 0.45})
	s.AddSignature(models.ViolationSpam, &Signature{ID: "spam.cheap-views", Tokens: []string{"cheap", "views"}, Weight: 0.45})
	s.AddSignature(models.ViolationSpam, &Signature{ID: "spam.promo-channel", Tokens: []string{"join", "my", "channel"}, Weight: 0.40})
	s.AddSignature(models.ViolationSpam, &Signature{ID: "spam.invite-flood", Pattern: regexp.MustCompile(`(?i)(t\.me/\S+.*){3,}`), Weight: 0.50})

	s.AddCategory(models.ViolationHarassment, 3)
	s.AddSignature(models.ViolationHarassment, &Signature{ID: "harassment.kys", Tokens: []string{"kys"}, Weight: 0.60})
	s.AddSignature(models.ViolationHarassment, &Signature{ID: "harassment.kill-yourself", Tokens: []string{"kill", "yourself"}, Weight: 0.60})
	s.AddSignature(models.ViolationHarassment, &Signature{ID: "harassment.worthless", Tokens: []string{"worthless", "trash"}, Weight: 0.40})

	s.AddCategory(models.ViolationRaid, 4)
	s.AddSignature(models.ViolationRaid, &Signature{ID: "raid.call", Tokens: []string{"raid", "this", "group"}, Weight: 0.60})
	s.AddSignature(models.ViolationRaid, &Signature{ID: "raid.spam-everyone", Tokens: []string{"everyone", "spam"}, Weight: 0.45})

	s.AddCategory(models.ViolationNSFW, 3)
	s.AddSignature(models.ViolationNSFW, &Signature{ID: "nsfw.leak", Tokens: []string{"onlyfans", "leak"}, Weight: 0.55})
	s.AddSignature(models.ViolationNSFW, &Signature{ID: "nsfw.porn-link", Pattern: regexp.MustCompile(`(?i)https?://\S*porn\S*`), Weight: 0.55})

	s.AddCategory(models.ViolationImpersonation, 4)
	s.AddSignature(models.ViolationImpersonation, &Signature{ID: "impersonation.official-support", Tokens: []string{"official", "support", "contact"}, Weight: 0.50})
	s.AddSignature(models.ViolationImpersonation, &Signature{ID: "impersonation.admin-verify", Tokens: []string{"admin", "team", "verify"}, Weight: 0.50})

	return s
}
