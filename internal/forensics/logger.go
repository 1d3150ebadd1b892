// Package forensics is the append-only, hash-indexed audit store. Every
// moderation decision is mirrored to durable storage and, best-effort, to the
// external audit channels. Rows are write-once and carry a strictly monotonic
// per-tenant sequence number; a gap indicates tampering or loss.
package forensics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
)

// EventStore is the persistence surface for forensic entries.
type EventStore interface {
	Insert(event *models.ViolationEvent) error
	MaxSeq(tenantID int64) (int64, error)
	Sequences(tenantID int64) ([]int64, error)
	ByHash(eventHash string) (*models.ViolationEvent, error)
	ByActor(tenantID, actorID int64, limit int) ([]*models.ViolationEvent, error)
	ByTenantSince(tenantID int64, since time.Time, limit int) ([]*models.ViolationEvent, error)
	UpdateVerdict(eventHash string, verdict models.Verdict) error
}

// Mirror is a best-effort external read channel for audit summaries.
type Mirror interface {
	Name() string
	Send(ctx context.Context, summary string) error
}

// ConsistencyError flags a forensic integrity violation. It is surfaced for
// manual audit, never used to crash the pipeline.
type ConsistencyError struct {
	TenantID int64
	Detail   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("forensic consistency violation in tenant %d: %s", e.TenantID, e.Detail)
}

type tenantSeq struct {
	mu     sync.Mutex
	last   int64
	loaded bool
}

// Logger writes forensic entries. It is the only component allowed to create
// them, and it does so for every violation event unconditionally, including
// events with no action taken.
type Logger struct {
	store   EventStore
	mirrors []Mirror

	mu   sync.Mutex
	seqs map[int64]*tenantSeq
}

func NewLogger(store EventStore, mirrors ...Mirror) *Logger {
	return &Logger{
		store:   store,
		mirrors: mirrors,
		seqs:    make(map[int64]*tenantSeq),
	}
}

func (l *Logger) tenantSeq(tenantID int64) *tenantSeq {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.seqs[tenantID]
	if !ok {
		ts = &tenantSeq{}
		l.seqs[tenantID] = ts
	}
	return ts
}

// Record assigns the event its sequence number and persists it. Sequence
// assignment is the one per-tenant serialization point; writers for different
// tenants proceed in parallel. Mirror delivery is best-effort: a mirror
// failure is logged and never fails the record.
func (l *Logger) Record(ctx context.Context, event *models.ViolationEvent) error {
	ts := l.tenantSeq(event.TenantID)
	ts.mu.Lock()
	if !ts.loaded {
		last, err := l.store.MaxSeq(event.TenantID)
		if err != nil {
			ts.mu.Unlock()
			return fmt.Errorf("loading sequence for tenant %d: %w", event.TenantID, err)
		}
		ts.last = last
		ts.loaded = true
	}
	event.SeqNo = ts.last + 1
	if err := l.store.Insert(event); err != nil {
		ts.mu.Unlock()
		return fmt.Errorf("persisting forensic entry: %w", err)
	}
	ts.last = event.SeqNo
	ts.mu.Unlock()

	summary := Summarize(event)
	for _, mirror := range l.mirrors {
		if err := mirror.Send(ctx, summary); err != nil {
			logger.Warningf("forensic mirror %s failed for event %s: %v", mirror.Name(), event.EventHash, err)
		}
	}
	return nil
}

// Lookup fetches an entry by its event hash.
func (l *Logger) Lookup(eventHash string) (*models.ViolationEvent, error) {
	return l.store.ByHash(eventHash)
}

// ListForUser returns a user's most recent entries.
func (l *Logger) ListForUser(tenantID, actorID int64, limit int) ([]*models.ViolationEvent, error) {
	return l.store.ByActor(tenantID, actorID, limit)
}

// ListForTenant returns tenant entries since the given time.
func (l *Logger) ListForTenant(tenantID int64, since time.Time, limit int) ([]*models.ViolationEvent, error) {
	return l.store.ByTenantSince(tenantID, since, limit)
}

// VerifySequence audits a tenant's log for gaps or duplicates. A non-nil
// ConsistencyError means the tenant should be flagged for manual audit.
func (l *Logger) VerifySequence(tenantID int64) error {
	seqs, err := l.store.Sequences(tenantID)
	if err != nil {
		return fmt.Errorf("loading sequences for tenant %d: %w", tenantID, err)
	}
	for i, seq := range seqs {
		expected := int64(i + 1)
		if seq != expected {
			return &ConsistencyError{
				TenantID: tenantID,
				Detail:   fmt.Sprintf("expected sequence %d, found %d", expected, seq),
			}
		}
	}
	return nil
}

// Summarize renders the human-readable audit line mirrored to the external
// channels.
func Summarize(event *models.ViolationEvent) string {
	applied := "applied"
	if !event.ActionApplied && event.ActionTaken != models.ActionNone {
		applied = "NOT applied"
	}
	msg := fmt.Sprintf("⚠️ <b>Moderation event</b> #%d\n", event.SeqNo)
	msg += fmt.Sprintf("Tenant <code>%d</code> / actor <code>%d</code>\n", event.TenantID, event.ActorID)
	msg += fmt.Sprintf("Type: <b>%s</b> (severity %d, confidence %.2f, risk %.2f)\n",
		event.Type, event.Severity, event.Confidence, event.RiskScore)
	msg += fmt.Sprintf("Action: <b>%s</b> (%s)\n", event.ActionTaken, applied)
	msg += fmt.Sprintf("Hash: <code>%s</code>", event.EventHash)
	return msg
}
