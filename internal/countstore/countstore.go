// Package countstore provides rolling counters keyed by name and value, with
// hourly, daily and all-time periods. The engine bumps per-tenant and
// per-actor violation tallies here; the /status command reads them back.
package countstore

import (
	"context"
	"fmt"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	Increment(ctx context.Context, name, val string) error
}

func periodBucket(name, val, period string, now time.Time) string {
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		return fmt.Sprintf("%s/%s/%s", name, val, now.UTC().Format(time.DateOnly))
	case PeriodHour:
		return fmt.Sprintf("%s/%s/%s", name, val, now.UTC().Format(time.RFC3339)[0:13])
	default:
		return fmt.Sprintf("%s/%s", name, val)
	}
}
