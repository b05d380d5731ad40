// Package repository wraps all SQL used by the server, the worker and the
// admin CLI.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// Repository is the Postgres implementation of every store interface.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New constructs a repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// mapError converts driver errors into the model sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, foreignKeyViolation, checkViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, model.ErrConflict)
		}
	}
	return err
}

// nullTime turns the zero time into SQL NULL so open-ended windows work.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// queryBuilder numbers positional arguments as they are added.
type queryBuilder struct {
	args []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func requireRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
