package countstore

import "fmt"

// Counter names shared by the writers in the engine and the readers in the
// command surface.
const (
	NameViolations = "violations"
	NameActions    = "actions"
)

// TenantKey is the counter value for a tenant-wide tally.
func TenantKey(tenantID int64) string {
	return fmt.Sprintf("tenant/%d", tenantID)
}

// ActorKey is the counter value for one actor inside a tenant.
func ActorKey(tenantID, actorID int64) string {
	return fmt.Sprintf("actor/%d/%d", tenantID, actorID)
}
