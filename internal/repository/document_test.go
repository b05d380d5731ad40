package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
)

func TestListQueryScopes(t *testing.T) {
	dept := int64(4)

	q, args := listQuery(policy.ListFilter{Scope: policy.ScopeNone})
	require.Empty(t, q)
	require.Nil(t, args)

	q, args = listQuery(policy.ListFilter{Scope: policy.ScopeAll, DisabledLast: true})
	require.NotContains(t, q, "\n\tWHERE ")
	require.NotContains(t, q, "d.department_id =")
	require.NotContains(t, q, "d.status <>")
	require.Contains(t, q, "ORDER BY (d.status = $1), d.updated_at DESC, d.id DESC")
	require.Equal(t, []any{"disabled"}, args)

	q, args = listQuery(policy.ListFilter{Scope: policy.ScopeAll, DepartmentID: &dept, DisabledLast: true})
	require.Contains(t, q, "WHERE d.department_id = $1")
	require.Equal(t, []any{int64(4), "disabled"}, args)

	q, args = listQuery(policy.ListFilter{Scope: policy.ScopeDepartment, UserID: 9, DepartmentID: &dept, ExcludeArchived: true})
	require.Contains(t, q, "(d.department_id = $2 OR EXISTS (SELECT 1 FROM document_readers r WHERE r.document_id = d.id AND r.user_id = $1))")
	require.Contains(t, q, "d.status <> $3")
	require.Equal(t, []any{int64(9), int64(4), "archived"}, args)

	q, args = listQuery(policy.ListFilter{Scope: policy.ScopeOwn, UserID: 9, ExcludeArchived: true})
	require.Contains(t, q, "d.created_by = $1 OR EXISTS")
	require.Equal(t, 2, strings.Count(q, "$1"))
	require.Equal(t, []any{int64(9), "archived"}, args)
}

func TestMapError(t *testing.T) {
	require.ErrorIs(t, mapError(pgx.ErrNoRows), model.ErrNotFound)
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
	require.ErrorIs(t, mapError(dup), model.ErrConflict)
	check := &pgconn.PgError{Code: "23514", ConstraintName: "documents_disabled_reason"}
	require.ErrorIs(t, mapError(check), model.ErrConflict)
	other := errors.New("boom")
	require.Equal(t, other, mapError(other))
}

func TestDocumentWritesRejectBadState(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	cases := []*model.Document{
		{Title: "SOP", DepartmentID: 1, Status: model.StatusDisabled},
		{Title: "SOP", DepartmentID: 1, Status: "retired"},
	}
	for _, doc := range cases {
		require.ErrorIs(t, r.CreateDocument(ctx, doc), model.ErrConflict)
		doc.ID = 1
		require.ErrorIs(t, r.UpdateDocument(ctx, doc), model.ErrConflict)
	}
}
