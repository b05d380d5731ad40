package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// CreateNotifications stores a batch of notifications in one round trip.
func (r *Repository) CreateNotifications(ctx context.Context, batch []model.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	now := r.now().UTC()
	b := &pgx.Batch{}
	for i := range batch {
		if batch[i].CreatedAt.IsZero() {
			batch[i].CreatedAt = now
		}
		n := &batch[i]
		b.Queue(`
			INSERT INTO notifications (recipient_id, document_id, type, message, is_read, created_at)
			VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id
		`, n.RecipientID, n.DocumentID, string(n.Type), n.Message, n.CreatedAt).QueryRow(func(row pgx.Row) error {
			return row.Scan(&n.ID)
		})
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert notifications: %w", mapError(err))
		}
		return nil
	})
}

// ListNotifications returns a user's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, recipientID int64, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT n.id, n.recipient_id, n.document_id, d.title, n.type, n.message, n.is_read, n.created_at
		FROM notifications n
		JOIN documents d ON d.id = n.document_id
		WHERE n.recipient_id=$1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT NULLIF($2::int, 0)
	`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		var (
			n    model.Notification
			kind string
		)
		err := row.Scan(&n.ID, &n.RecipientID, &n.DocumentID, &n.DocumentTitle, &kind, &n.Message, &n.IsRead, &n.CreatedAt)
		n.Type = model.NotificationType(kind)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return out, nil
}

// CountUnread returns how many notifications recipientID has not read.
func (r *Repository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT is_read`, recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkNotificationRead flags a notification owned by recipientID as read.
func (r *Repository) MarkNotificationRead(ctx context.Context, id, recipientID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	return requireRow(tag)
}

const printSelect = `
	SELECT p.id, p.user_id, u.username, p.document_id, d.title, p.reason, p.status,
		p.handled_by, p.handled_at, p.notes, p.created_at
	FROM print_requests p
	JOIN users u ON u.id = p.user_id
	JOIN documents d ON d.id = p.document_id`

func scanPrint(row pgx.Row) (*model.PrintRequest, error) {
	var (
		p      model.PrintRequest
		status string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.DocumentID, &p.DocumentTitle, &p.Reason, &status,
		&p.HandledBy, &p.HandledAt, &p.Notes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PrintStatus(status)
	return &p, nil
}

// CreatePrintRequest files a pending print request.
func (r *Repository) CreatePrintRequest(ctx context.Context, p *model.PrintRequest) error {
	p.Status = model.PrintPending
	p.CreatedAt = r.now().UTC()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO print_requests (user_id, document_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, p.UserID, p.DocumentID, p.Reason, string(p.Status), p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert print request: %w", mapError(err))
	}
	return nil
}

// GetPrintRequest returns a print request by id.
func (r *Repository) GetPrintRequest(ctx context.Context, id int64) (*model.PrintRequest, error) {
	p, err := scanPrint(r.pool.QueryRow(ctx, printSelect+` WHERE p.id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("select print request: %w", mapError(err))
	}
	return p, nil
}

// ListPrintRequests returns requests with the given status, oldest first. An
// empty status returns all of them.
func (r *Repository) ListPrintRequests(ctx context.Context, status model.PrintStatus) ([]model.PrintRequest, error) {
	rows, err := r.pool.Query(ctx, printSelect+`
		WHERE $1 = '' OR p.status = $1
		ORDER BY p.created_at, p.id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list print requests: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PrintRequest, error) {
		p, err := scanPrint(row)
		if err != nil {
			return model.PrintRequest{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan print requests: %w", err)
	}
	return out, nil
}

// DecidePrintRequest approves or rejects a pending request.
func (r *Repository) DecidePrintRequest(ctx context.Context, id, handlerID int64, status model.PrintStatus, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE print_requests SET status=$1, handled_by=$2, handled_at=$3, notes=$4
		WHERE id=$5 AND status='pending'
	`, string(status), handlerID, r.now().UTC(), notes, id)
	if err != nil {
		return fmt.Errorf("decide print request: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetPrintRequest(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("print request %d already decided: %w", id, model.ErrConflict)
}
