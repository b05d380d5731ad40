package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
)

const documentSelect = `
	SELECT d.id, d.title, d.description, d.department_id, COALESCE(dep.name, ''), d.object_key,
		d.file_name, d.file_size, d.page_count, d.status, d.disabled_reason, d.created_by,
		COALESCE(u.username, ''), d.created_at, d.updated_at,
		ARRAY(SELECT r.user_id FROM document_readers r WHERE r.document_id = d.id ORDER BY r.user_id)
	FROM documents d
	LEFT JOIN departments dep ON dep.id = d.department_id
	LEFT JOIN users u ON u.id = d.created_by`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		doc    model.Document
		status string
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Description, &doc.DepartmentID, &doc.DepartmentName, &doc.ObjectKey,
		&doc.FileName, &doc.FileSize, &doc.PageCount, &status, &doc.DisabledReason, &doc.CreatedBy,
		&doc.CreatedByName, &doc.CreatedAt, &doc.UpdatedAt, &doc.ReaderIDs)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]model.Document, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Document, error) {
		d, err := scanDocument(row)
		if err != nil {
			return model.Document{}, err
		}
		return *d, nil
	})
}

// listQuery renders a policy.ListFilter as SQL. It returns an empty query
// when the filter can match nothing.
func listQuery(f policy.ListFilter) (string, []any) {
	var (
		b     queryBuilder
		where []string
	)
	switch f.Scope {
	case policy.ScopeAll:
		if f.DepartmentID != nil {
			where = append(where, "d.department_id = "+b.arg(*f.DepartmentID))
		}
	case policy.ScopeDepartment:
		reader := b.arg(f.UserID)
		shared := "EXISTS (SELECT 1 FROM document_readers r WHERE r.document_id = d.id AND r.user_id = " + reader + ")"
		if f.DepartmentID != nil {
			where = append(where, "(d.department_id = "+b.arg(*f.DepartmentID)+" OR "+shared+")")
		} else {
			where = append(where, shared)
		}
	case policy.ScopeOwn:
		user := b.arg(f.UserID)
		where = append(where, "(d.created_by = "+user+
			" OR EXISTS (SELECT 1 FROM document_readers r WHERE r.document_id = d.id AND r.user_id = "+user+"))")
	default:
		return "", nil
	}
	if f.ExcludeArchived {
		where = append(where, "d.status <> "+b.arg(string(model.StatusArchived)))
	}
	var q strings.Builder
	q.WriteString(documentSelect)
	if len(where) > 0 {
		q.WriteString("\n\tWHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString("\n\tORDER BY ")
	if f.DisabledLast {
		q.WriteString("(d.status = " + b.arg(string(model.StatusDisabled)) + "), ")
	}
	q.WriteString("d.updated_at DESC, d.id DESC")
	return q.String(), b.args
}

// CreateDocument inserts a document and its readers.
func (r *Repository) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := doc.CheckState(); err != nil {
		return err
	}
	now := r.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO documents (title, description, department_id, object_key, file_name, file_size,
				page_count, status, disabled_reason, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id
		`, doc.Title, doc.Description, doc.DepartmentID, doc.ObjectKey, doc.FileName, doc.FileSize,
			doc.PageCount, string(doc.Status), doc.DisabledReason, doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
		if err != nil {
			return fmt.Errorf("insert document: %w", mapError(err))
		}
		return replaceReaders(ctx, tx, doc.ID, doc.ReaderIDs)
	})
}

func replaceReaders(ctx context.Context, tx pgx.Tx, documentID int64, readers []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM document_readers WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("clear readers: %w", err)
	}
	if len(readers) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO document_readers (document_id, user_id)
		SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING
	`, documentID, readers)
	if err != nil {
		return fmt.Errorf("insert readers: %w", mapError(err))
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (r *Repository) GetDocument(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, documentSelect+` WHERE d.id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("select document: %w", mapError(err))
	}
	return doc, nil
}

// ListDocuments returns the documents matching f in listing order.
func (r *Repository) ListDocuments(ctx context.Context, f policy.ListFilter) ([]model.Document, error) {
	q, args := listQuery(f)
	if q == "" {
		return []model.Document{}, nil
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out, err := collectDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return out, nil
}

// UpdateDocument replaces the editable fields and readers. The file columns
// are kept when doc.ObjectKey is empty.
func (r *Repository) UpdateDocument(ctx context.Context, doc *model.Document) error {
	if err := doc.CheckState(); err != nil {
		return err
	}
	doc.UpdatedAt = r.now().UTC()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE documents SET
				title=$1, description=$2, department_id=$3, status=$4, disabled_reason=$5, updated_at=$6,
				object_key = COALESCE(NULLIF($7, ''), object_key),
				file_name = CASE WHEN $7 = '' THEN file_name ELSE $8 END,
				file_size = CASE WHEN $7 = '' THEN file_size ELSE $9 END,
				page_count = CASE WHEN $7 = '' THEN page_count ELSE NULL END
			WHERE id=$10
			RETURNING created_at
		`, doc.Title, doc.Description, doc.DepartmentID, string(doc.Status), doc.DisabledReason, doc.UpdatedAt,
			doc.ObjectKey, doc.FileName, doc.FileSize, doc.ID).Scan(&doc.CreatedAt)
		if err != nil {
			return fmt.Errorf("update document: %w", mapError(err))
		}
		return replaceReaders(ctx, tx, doc.ID, doc.ReaderIDs)
	})
}

// SetPageCount records the page count without touching updated_at.
func (r *Repository) SetPageCount(ctx context.Context, id int64, pages int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET page_count=$1 WHERE id=$2`, pages, id)
	if err != nil {
		return fmt.Errorf("set page count: %w", err)
	}
	return requireRow(tag)
}

// DeleteDocument removes a document; foreign keys cascade to its readers,
// activity, notifications and print requests.
func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(tag)
}

// RecentDocuments returns the most recently created documents.
func (r *Repository) RecentDocuments(ctx context.Context, limit int) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx, documentSelect+` ORDER BY d.created_at DESC, d.id DESC LIMIT NULLIF($1::int, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent documents: %w", err)
	}
	out, err := collectDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return out, nil
}
