package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// AppendActivity inserts an audit record. Records are never updated.
func (r *Repository) AppendActivity(ctx context.Context, a *model.Activity) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = r.now().UTC()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_activities (document_id, user_id, department_id, action, timestamp)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, a.DocumentID, a.UserID, a.DepartmentID, string(a.Action), a.Timestamp).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert activity: %w", mapError(err))
	}
	return nil
}

// ListActivities pages through the trail, newest first.
func (r *Repository) ListActivities(ctx context.Context, offset, limit int) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.document_id, d.title, a.user_id, COALESCE(u.username, ''),
			a.department_id, COALESCE(dep.name, ''), a.action, a.timestamp
		FROM document_activities a
		JOIN documents d ON d.id = a.document_id
		LEFT JOIN users u ON u.id = a.user_id
		LEFT JOIN departments dep ON dep.id = a.department_id
		ORDER BY a.timestamp DESC, a.id DESC
		OFFSET $1 LIMIT NULLIF($2::int, 0)
	`, max(offset, 0), limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Activity, error) {
		var (
			a      model.Activity
			action string
		)
		err := row.Scan(&a.ID, &a.DocumentID, &a.DocumentTitle, &a.UserID, &a.Username,
			&a.DepartmentID, &a.DepartmentName, &action, &a.Timestamp)
		a.Action = model.Action(action)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan activities: %w", err)
	}
	return out, nil
}
