package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// CreateDepartment inserts a department.
func (r *Repository) CreateDepartment(ctx context.Context, d *model.Department) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO departments (name, code, is_active) VALUES ($1, $2, $3) RETURNING id
	`, d.Name, d.Code, d.IsActive).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert department: %w", mapError(err))
	}
	return nil
}

// GetDepartment returns a department by id.
func (r *Repository) GetDepartment(ctx context.Context, id int64) (*model.Department, error) {
	var d model.Department
	err := r.pool.QueryRow(ctx, `SELECT id, name, code, is_active FROM departments WHERE id=$1`, id).
		Scan(&d.ID, &d.Name, &d.Code, &d.IsActive)
	if err != nil {
		return nil, fmt.Errorf("select department: %w", mapError(err))
	}
	return &d, nil
}

// ListDepartments returns departments ordered by name.
func (r *Repository) ListDepartments(ctx context.Context, activeOnly bool) ([]model.Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, code, is_active FROM departments
		WHERE is_active OR NOT $1
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Department, error) {
		var d model.Department
		err := row.Scan(&d.ID, &d.Name, &d.Code, &d.IsActive)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan departments: %w", err)
	}
	return out, nil
}

// SetDepartmentActive toggles a department.
func (r *Repository) SetDepartmentActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE departments SET is_active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return requireRow(tag)
}

const userSelect = `
	SELECT u.id, u.username, u.email, u.password_hash, u.department_id, COALESCE(dep.name, ''),
		u.is_superuser, u.is_active, u.created_at,
		ARRAY(SELECT g.group_name FROM user_groups g WHERE g.user_id = u.id ORDER BY g.group_name)
	FROM users u
	LEFT JOIN departments dep ON dep.id = u.department_id`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DepartmentID, &u.DepartmentName,
		&u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.Groups)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]model.User, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		u, err := scanUser(row)
		if err != nil {
			return model.User{}, err
		}
		return *u, nil
	})
}

// CreateUser inserts a user and its groups in one transaction.
func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (username, email, password_hash, department_id, is_superuser, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
		`, u.Username, u.Email, u.PasswordHash, u.DepartmentID, u.IsSuperuser, u.IsActive, u.CreatedAt).Scan(&u.ID)
		if err != nil {
			return fmt.Errorf("insert user: %w", mapError(err))
		}
		return replaceGroups(ctx, tx, u.ID, u.Groups)
	})
}

func replaceGroups(ctx context.Context, tx pgx.Tx, userID int64, groups []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_groups WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("clear groups: %w", err)
	}
	if len(groups) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO user_groups (user_id, group_name)
		SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING
	`, userID, groups)
	if err != nil {
		return fmt.Errorf("insert groups: %w", mapError(err))
	}
	return nil
}

// GetUser returns a user with groups and department name.
func (r *Repository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("select user: %w", mapError(err))
	}
	return u, nil
}

// GetUserByUsername looks a user up by login name.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.username=$1`, username))
	if err != nil {
		return nil, fmt.Errorf("select user: %w", mapError(err))
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` ORDER BY u.username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return out, nil
}

// ListDepartmentUsers returns the active users of a department.
func (r *Repository) ListDepartmentUsers(ctx context.Context, departmentID int64) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` WHERE u.department_id=$1 AND u.is_active ORDER BY u.username`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list department users: %w", err)
	}
	out, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return out, nil
}

// SetUserGroups replaces a user's group memberships.
func (r *Repository) SetUserGroups(ctx context.Context, id int64, groups []string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return model.ErrNotFound
		}
		return replaceGroups(ctx, tx, id, groups)
	})
}

// DeleteUser removes a user; foreign keys null the audit references.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", mapError(err))
	}
	return requireRow(tag)
}
