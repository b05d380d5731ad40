package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

var _ analytics.Source = (*Repository)(nil)

func (r *Repository) count(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) grouped(ctx context.Context, q string, args ...any) ([]analytics.Count, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.Count, error) {
		var c analytics.Count
		err := row.Scan(&c.Key, &c.Total)
		c.Label = c.Key
		return c, err
	})
}

// CountDocumentsByStatus counts documents per status.
func (r *Repository) CountDocumentsByStatus(ctx context.Context) (map[model.DocumentStatus]int64, error) {
	rows, err := r.grouped(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	out := make(map[model.DocumentStatus]int64, len(rows))
	for _, row := range rows {
		out[model.DocumentStatus(row.Key)] = row.Total
	}
	return out, nil
}

// CountDocumentsCreated counts documents created in [since, until).
func (r *Repository) CountDocumentsCreated(ctx context.Context, since, until time.Time) (int64, error) {
	n, err := r.count(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
	`, nullTime(since), nullTime(until))
	if err != nil {
		return 0, fmt.Errorf("count documents created: %w", err)
	}
	return n, nil
}

// CountActiveDepartments counts departments that are not deactivated.
func (r *Repository) CountActiveDepartments(ctx context.Context) (int64, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM departments WHERE is_active`)
	if err != nil {
		return 0, fmt.Errorf("count departments: %w", err)
	}
	return n, nil
}

// CountActiveUsers counts users allowed to sign in.
func (r *Repository) CountActiveUsers(ctx context.Context) (int64, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM users WHERE is_active`)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountActivities counts audit records matching f.
func (r *Repository) CountActivities(ctx context.Context, f analytics.ActivityFilter) (int64, error) {
	n, err := r.count(ctx, `
		SELECT COUNT(*) FROM document_activities
		WHERE ($1 = '' OR action = $1)
		  AND ($2::timestamptz IS NULL OR timestamp >= $2)
		  AND ($3::timestamptz IS NULL OR timestamp < $3)
		  AND (NOT $4 OR user_id IS NOT NULL)
	`, string(f.Action), nullTime(f.Since), nullTime(f.Until), f.RequireUser)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

// AttemptsByUser ranks users by attempts on disabled documents.
func (r *Repository) AttemptsByUser(ctx context.Context, since time.Time, atLeast int64, limit int) ([]analytics.Count, error) {
	rows, err := r.grouped(ctx, `
		SELECT u.username, COUNT(*) FROM document_activities a
		JOIN users u ON u.id = a.user_id
		WHERE a.action = 'attempt_disabled' AND ($1::timestamptz IS NULL OR a.timestamp >= $1)
		GROUP BY u.username
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC, u.username
		LIMIT NULLIF($3::int, 0)
	`, nullTime(since), atLeast, limit)
	if err != nil {
		return nil, fmt.Errorf("attempts by user: %w", err)
	}
	return rows, nil
}

// AttemptsByDocument ranks document titles by attempts. Records whose user
// was deleted still count.
func (r *Repository) AttemptsByDocument(ctx context.Context, since time.Time, atLeast int64, limit int) ([]analytics.Count, error) {
	rows, err := r.grouped(ctx, `
		SELECT d.title, COUNT(*) FROM document_activities a
		JOIN documents d ON d.id = a.document_id
		WHERE a.action = 'attempt_disabled' AND ($1::timestamptz IS NULL OR a.timestamp >= $1)
		GROUP BY d.title
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC, d.title
		LIMIT NULLIF($3::int, 0)
	`, nullTime(since), atLeast, limit)
	if err != nil {
		return nil, fmt.Errorf("attempts by document: %w", err)
	}
	return rows, nil
}

// DocumentsByDepartment counts documents per department name.
func (r *Repository) DocumentsByDepartment(ctx context.Context) ([]analytics.Count, error) {
	rows, err := r.grouped(ctx, `
		SELECT COALESCE(dep.name, ''), COUNT(*) FROM documents d
		LEFT JOIN departments dep ON dep.id = d.department_id
		GROUP BY 1
		ORDER BY 2 DESC, 1
	`)
	if err != nil {
		return nil, fmt.Errorf("documents by department: %w", err)
	}
	return rows, nil
}

// ActivitiesByAction counts audit records per action key.
func (r *Repository) ActivitiesByAction(ctx context.Context) ([]analytics.Count, error) {
	rows, err := r.grouped(ctx, `
		SELECT action, COUNT(*) FROM document_activities
		GROUP BY action
		ORDER BY 2 DESC, 1
	`)
	if err != nil {
		return nil, fmt.Errorf("activities by action: %w", err)
	}
	return rows, nil
}
