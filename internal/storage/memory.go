// Package storage contains the in-memory persistence layer used by tests and
// by the development mode of the server. It mirrors the Postgres repository,
// including its cascade rules, so handlers behave the same on either.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// MemoryStore keeps every table in maps guarded by one RWMutex. Readers get
// copies so they can never mutate internal state.
type MemoryStore struct {
	mu            sync.RWMutex
	seq           int64
	departments   map[int64]*model.Department
	users         map[int64]*model.User
	documents     map[int64]*model.Document
	activities    []*model.Activity
	notifications []*model.Notification
	prints        map[int64]*model.PrintRequest
	now           func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		departments: make(map[int64]*model.Department),
		users:       make(map[int64]*model.User),
		documents:   make(map[int64]*model.Document),
		prints:      make(map[int64]*model.PrintRequest),
		now:         time.Now,
	}
}

// SetClock replaces the time source; tests use it to control timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) nextID() int64 {
	m.seq++
	return m.seq
}

// CreateDepartment inserts a department with a unique name and code.
func (m *MemoryStore) CreateDepartment(_ context.Context, d *model.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.departments {
		if existing.Name == d.Name {
			return fmt.Errorf("department %q: %w", d.Name, model.ErrConflict)
		}
		if d.Code != nil && existing.Code != nil && *existing.Code == *d.Code {
			return fmt.Errorf("department code %q: %w", *d.Code, model.ErrConflict)
		}
	}
	d.ID = m.nextID()
	cp := *d
	m.departments[d.ID] = &cp
	return nil
}

// GetDepartment returns a department by id.
func (m *MemoryStore) GetDepartment(_ context.Context, id int64) (*model.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.departments[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// ListDepartments returns departments ordered by name.
func (m *MemoryStore) ListDepartments(_ context.Context, activeOnly bool) ([]model.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Department, 0, len(m.departments))
	for _, d := range m.departments {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetDepartmentActive toggles a department without touching its users or
// documents.
func (m *MemoryStore) SetDepartmentActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.departments[id]
	if !ok {
		return model.ErrNotFound
	}
	d.IsActive = active
	return nil
}

// CreateUser inserts a user and its group memberships.
func (m *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return fmt.Errorf("user %q: %w", u.Username, model.ErrConflict)
		}
	}
	if u.DepartmentID != nil {
		if _, ok := m.departments[*u.DepartmentID]; !ok {
			return fmt.Errorf("department %d: %w", *u.DepartmentID, model.ErrConflict)
		}
	}
	u.ID = m.nextID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	cp := *u
	cp.Groups = append([]string(nil), u.Groups...)
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) userCopy(u *model.User) *model.User {
	cp := *u
	cp.Groups = append([]string(nil), u.Groups...)
	sort.Strings(cp.Groups)
	cp.DepartmentName = ""
	if u.DepartmentID != nil {
		if d, ok := m.departments[*u.DepartmentID]; ok {
			cp.DepartmentName = d.Name
		}
	}
	return &cp
}

// GetUser returns a user with groups and department name.
func (m *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return m.userCopy(u), nil
}

// GetUserByUsername looks a user up by login name.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return m.userCopy(u), nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *MemoryStore) sortedUsers(keep func(*model.User) bool) []model.User {
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		if keep(u) {
			out = append(out, *m.userCopy(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// ListUsers returns every user ordered by username.
func (m *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedUsers(func(*model.User) bool { return true }), nil
}

// ListDepartmentUsers returns the active users of a department.
func (m *MemoryStore) ListDepartmentUsers(_ context.Context, departmentID int64) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedUsers(func(u *model.User) bool {
		return u.IsActive && u.InDepartment(departmentID)
	}), nil
}

// SetUserGroups replaces a user's group memberships.
func (m *MemoryStore) SetUserGroups(_ context.Context, id int64, groups []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.ErrNotFound
	}
	u.Groups = append([]string(nil), groups...)
	return nil
}

// DeleteUser removes a user. Activity keeps the record with a nil user and
// created documents lose their creator, matching the SQL foreign keys.
func (m *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.users, id)
	for _, a := range m.activities {
		if a.UserID != nil && *a.UserID == id {
			a.UserID = nil
		}
	}
	for _, d := range m.documents {
		if d.CreatedByUser(id) {
			d.CreatedBy = nil
		}
		d.ReaderIDs = removeID(d.ReaderIDs, id)
	}
	kept := m.notifications[:0]
	for _, n := range m.notifications {
		if n.RecipientID != id {
			kept = append(kept, n)
		}
	}
	m.notifications = kept
	for pid, p := range m.prints {
		if p.UserID == id {
			delete(m.prints, pid)
			continue
		}
		if p.HandledBy != nil && *p.HandledBy == id {
			p.HandledBy = nil
		}
	}
	return nil
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
