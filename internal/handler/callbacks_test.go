package handler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tg-sentinel/internal/models"
)

func similarFixture(n int) []*models.ViolationEvent {
	at := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	events := make([]*models.ViolationEvent, n)
	for i := range events {
		events[i] = &models.ViolationEvent{
			EventHash: fmt.Sprintf("hash-%02d", i),
			ActorID:   int64(100 + i),
			Type:      models.ViolationScam,
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
		}
	}
	return events
}

func TestFormatSimilarEventsListsHashes(t *testing.T) {
	assert := assert.New(t)
	text := formatSimilarEvents(similarFixture(3))

	// every incident is identifiable by hash and actor
	assert.Contains(text, "hash-00")
	assert.Contains(text, "hash-02")
	assert.Contains(text, "<code>100</code>")
	assert.Contains(text, string(models.ViolationScam))
	assert.NotContains(text, "and ")
}

func TestFormatSimilarEventsCapsTheList(t *testing.T) {
	assert := assert.New(t)
	text := formatSimilarEvents(similarFixture(14))

	assert.Contains(text, "hash-09")
	assert.NotContains(text, "hash-10")
	assert.Contains(text, "and 4 more")
}
