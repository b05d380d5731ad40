package storage

import (
	"context"
	"sort"
	"time"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

var _ analytics.Source = (*MemoryStore)(nil)

func inWindow(t, since, until time.Time) bool {
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && !t.Before(until) {
		return false
	}
	return true
}

// CountDocumentsByStatus counts documents per status.
func (m *MemoryStore) CountDocumentsByStatus(_ context.Context) (map[model.DocumentStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.DocumentStatus]int64, len(model.DocumentStatuses))
	for _, d := range m.documents {
		out[d.Status]++
	}
	return out, nil
}

// CountDocumentsCreated counts documents created in [since, until).
func (m *MemoryStore) CountDocumentsCreated(_ context.Context, since, until time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.documents {
		if inWindow(d.CreatedAt, since, until) {
			n++
		}
	}
	return n, nil
}

// CountActiveDepartments counts departments that are not deactivated.
func (m *MemoryStore) CountActiveDepartments(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.departments {
		if d.IsActive {
			n++
		}
	}
	return n, nil
}

// CountActiveUsers counts users allowed to sign in.
func (m *MemoryStore) CountActiveUsers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, u := range m.users {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func matchActivity(a *model.Activity, f analytics.ActivityFilter) bool {
	if f.Action != "" && a.Action != f.Action {
		return false
	}
	if f.RequireUser && a.UserID == nil {
		return false
	}
	return inWindow(a.Timestamp, f.Since, f.Until)
}

// CountActivities counts audit records matching f.
func (m *MemoryStore) CountActivities(_ context.Context, f analytics.ActivityFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, a := range m.activities {
		if matchActivity(a, f) {
			n++
		}
	}
	return n, nil
}

func rankCounts(totals map[string]int64, atLeast int64, limit int) []analytics.Count {
	out := make([]analytics.Count, 0, len(totals))
	for k, n := range totals {
		if n < atLeast {
			continue
		}
		out = append(out, analytics.Count{Key: k, Label: k, Total: n})
	}
	sortCounts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortCounts(rows []analytics.Count) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Key < rows[j].Key
	})
}

// AttemptsByUser ranks users by attempts on disabled documents.
func (m *MemoryStore) AttemptsByUser(_ context.Context, since time.Time, atLeast int64, limit int) ([]analytics.Count, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := analytics.ActivityFilter{Action: model.ActionAttemptDisabled, Since: since, RequireUser: true}
	totals := make(map[string]int64)
	for _, a := range m.activities {
		if !matchActivity(a, f) {
			continue
		}
		u, ok := m.users[*a.UserID]
		if !ok {
			continue
		}
		totals[u.Username]++
	}
	return rankCounts(totals, atLeast, limit), nil
}

// AttemptsByDocument ranks document titles by attempts. Records whose user
// was deleted still count.
func (m *MemoryStore) AttemptsByDocument(_ context.Context, since time.Time, atLeast int64, limit int) ([]analytics.Count, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := analytics.ActivityFilter{Action: model.ActionAttemptDisabled, Since: since}
	totals := make(map[string]int64)
	for _, a := range m.activities {
		if !matchActivity(a, f) {
			continue
		}
		d, ok := m.documents[a.DocumentID]
		if !ok {
			continue
		}
		totals[d.Title]++
	}
	return rankCounts(totals, atLeast, limit), nil
}

// DocumentsByDepartment counts documents per department name.
func (m *MemoryStore) DocumentsByDepartment(_ context.Context) ([]analytics.Count, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	totals := make(map[string]int64)
	for _, d := range m.documents {
		name := ""
		if dept, ok := m.departments[d.DepartmentID]; ok {
			name = dept.Name
		}
		totals[name]++
	}
	return rankCounts(totals, 0, 0), nil
}

// ActivitiesByAction counts audit records per action key.
func (m *MemoryStore) ActivitiesByAction(_ context.Context) ([]analytics.Count, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	totals := make(map[string]int64)
	for _, a := range m.activities {
		totals[string(a.Action)]++
	}
	return rankCounts(totals, 0, 0), nil
}

// RecentDocuments returns the most recently created documents.
func (m *MemoryStore) RecentDocuments(_ context.Context, limit int) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]*model.Document, 0, len(m.documents))
	for _, d := range m.documents {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, *m.documentCopy(d))
	}
	return out, nil
}
