// Package feedback closes the loop between moderator review and the
// classifier. Confirmed verdicts reinforce the signatures that fired,
// rejected verdicts weaken them, and similar recent events can be surfaced
// for batch review.
package feedback

import (
	"context"
	"fmt"
	"time"

	"tg-sentinel/internal/classifier"
	"tg-sentinel/internal/forensics"
	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
)

const scanLimit = 200

// Reviewer applies moderator verdicts to recorded events and adjusts
// signature weights accordingly.
type Reviewer struct {
	store      forensics.EventStore
	signatures *classifier.SignatureStore

	// Step is the weight delta applied per verdict.
	Step float64
	// SimilarityThreshold is the minimum token overlap for the similarity scan.
	SimilarityThreshold float64
}

func NewReviewer(store forensics.EventStore, signatures *classifier.SignatureStore, step, similarityThreshold float64) *Reviewer {
	return &Reviewer{
		store:               store,
		signatures:          signatures,
		Step:                step,
		SimilarityThreshold: similarityThreshold,
	}
}

// ApplyVerdict records a moderator's confirm/reject decision on an event and
// nudges the weights of every signature that matched it. Re-submitting the
// same verdict is a no-op so repeated button presses cannot compound the
// weight adjustment.
func (r *Reviewer) ApplyVerdict(ctx context.Context, eventHash string, confirmed bool) (*models.ViolationEvent, error) {
	event, err := r.store.ByHash(eventHash)
	if err != nil {
		return nil, fmt.Errorf("loading event %s: %w", eventHash, err)
	}
	if event == nil {
		return nil, fmt.Errorf("no event with hash %s", eventHash)
	}

	verdict := models.VerdictRejected
	if confirmed {
		verdict = models.VerdictConfirmed
	}
	if event.ModeratorVerdict == verdict {
		return event, nil
	}
	if err := r.store.UpdateVerdict(eventHash, verdict); err != nil {
		return nil, fmt.Errorf("updating verdict for %s: %w", eventHash, err)
	}
	event.ModeratorVerdict = verdict

	delta := r.Step
	if !confirmed {
		delta = -r.Step
	}
	for _, sigID := range event.MatchedSignatures {
		if !r.signatures.Nudge(sigID, delta) {
			logger.Warningf("verdict %s on event %s refers to unknown signature %s", verdict, eventHash, sigID)
			continue
		}
		weight, _ := r.signatures.Weight(sigID)
		logger.Infof("verdict %s on event %s: signature %s weight now %.2f", verdict, eventHash, sigID, weight)
	}
	return event, nil
}

// SimilarEvents returns recent tenant events whose content overlaps the given
// event's content at or above the similarity threshold. The reviewed event
// itself is excluded.
func (r *Reviewer) SimilarEvents(ctx context.Context, event *models.ViolationEvent, since time.Time) ([]*models.ViolationEvent, error) {
	candidates, err := r.store.ByTenantSince(event.TenantID, since, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("scanning tenant %d events: %w", event.TenantID, err)
	}
	var similar []*models.ViolationEvent
	for _, candidate := range candidates {
		if candidate.EventHash == event.EventHash {
			continue
		}
		if Similarity(event.RawContent, candidate.RawContent) >= r.SimilarityThreshold {
			similar = append(similar, candidate)
		}
	}
	return similar, nil
}
