// Package analytics summarizes documents and the activity trail for the
// quality dashboard and the KPI endpoints. It never writes.
package analytics

import (
	"context"
	"time"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// ActivityFilter narrows activity counts. Zero values mean "any".
type ActivityFilter struct {
	Action model.Action
	// Since is inclusive, Until exclusive.
	Since time.Time
	Until time.Time
	// RequireUser drops records whose user was deleted.
	RequireUser bool
}

// Count is one row of a grouped count.
type Count struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Total int64  `json:"total"`
}

// Source is the read model the aggregator queries. Grouped results are
// ordered by total descending, then by key ascending.
type Source interface {
	CountDocumentsByStatus(ctx context.Context) (map[model.DocumentStatus]int64, error)
	CountDocumentsCreated(ctx context.Context, since, until time.Time) (int64, error)
	CountActiveDepartments(ctx context.Context) (int64, error)
	CountActiveUsers(ctx context.Context) (int64, error)
	CountActivities(ctx context.Context, f ActivityFilter) (int64, error)
	// AttemptsByUser groups attempt_disabled records with a user by username,
	// keeping groups with at least atLeast records. A zero since means all
	// time and a zero limit returns every group.
	AttemptsByUser(ctx context.Context, since time.Time, atLeast int64, limit int) ([]Count, error)
	// AttemptsByDocument groups attempt_disabled records by document title.
	AttemptsByDocument(ctx context.Context, since time.Time, atLeast int64, limit int) ([]Count, error)
	// DocumentsByDepartment keys rows by department name, empty when unknown.
	DocumentsByDepartment(ctx context.Context) ([]Count, error)
	ActivitiesByAction(ctx context.Context) ([]Count, error)
	RecentDocuments(ctx context.Context, limit int) ([]model.Document, error)
	ListActivities(ctx context.Context, offset, limit int) ([]model.Activity, error)
}
