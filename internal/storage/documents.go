package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
)

func (m *MemoryStore) documentCopy(d *model.Document) *model.Document {
	cp := d.Clone()
	if dept, ok := m.departments[d.DepartmentID]; ok {
		cp.DepartmentName = dept.Name
	}
	cp.CreatedByName = ""
	if d.CreatedBy != nil {
		if u, ok := m.users[*d.CreatedBy]; ok {
			cp.CreatedByName = u.Username
		}
	}
	return cp
}

func (m *MemoryStore) checkDocumentRefs(doc *model.Document) error {
	if err := doc.CheckState(); err != nil {
		return err
	}
	if _, ok := m.departments[doc.DepartmentID]; !ok {
		return fmt.Errorf("department %d: %w", doc.DepartmentID, model.ErrConflict)
	}
	for _, id := range doc.ReaderIDs {
		if _, ok := m.users[id]; !ok {
			return fmt.Errorf("reader %d: %w", id, model.ErrConflict)
		}
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CreateDocument stores doc, assigning its ID and timestamps.
func (m *MemoryStore) CreateDocument(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDocumentRefs(doc); err != nil {
		return err
	}
	now := m.now().UTC()
	doc.ID = m.nextID()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.ReaderIDs = dedupeIDs(doc.ReaderIDs)
	m.documents[doc.ID] = doc.Clone()
	return nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(_ context.Context, id int64) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return m.documentCopy(d), nil
}

// ListDocuments returns the documents matching f in listing order.
func (m *MemoryStore) ListDocuments(_ context.Context, f policy.ListFilter) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*model.Document, 0, len(m.documents))
	for _, d := range m.documents {
		all = append(all, d)
	}
	matched := f.Filter(all)
	out := make([]model.Document, 0, len(matched))
	for _, d := range matched {
		out = append(out, *m.documentCopy(d))
	}
	return out, nil
}

// UpdateDocument replaces the editable fields of a document and bumps
// UpdatedAt. The file fields are kept when doc.ObjectKey is empty.
func (m *MemoryStore) UpdateDocument(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.documents[doc.ID]
	if !ok {
		return model.ErrNotFound
	}
	if err := m.checkDocumentRefs(doc); err != nil {
		return err
	}
	next := doc.Clone()
	next.CreatedAt = existing.CreatedAt
	next.CreatedBy = existing.CreatedBy
	if next.ObjectKey == "" {
		next.ObjectKey = existing.ObjectKey
		next.FileName = existing.FileName
		next.FileSize = existing.FileSize
		next.PageCount = existing.PageCount
	}
	next.ReaderIDs = dedupeIDs(doc.ReaderIDs)
	next.UpdatedAt = m.now().UTC()
	m.documents[doc.ID] = next
	doc.UpdatedAt = next.UpdatedAt
	doc.CreatedAt = next.CreatedAt
	return nil
}

// SetPageCount records the page count found by the inspection job without
// touching UpdatedAt.
func (m *MemoryStore) SetPageCount(_ context.Context, id int64, pages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return model.ErrNotFound
	}
	d.PageCount = &pages
	return nil
}

// DeleteDocument removes a document together with everything that
// references it: readers, activity, notifications and print requests.
func (m *MemoryStore) DeleteDocument(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.documents, id)
	acts := m.activities[:0]
	for _, a := range m.activities {
		if a.DocumentID != id {
			acts = append(acts, a)
		}
	}
	m.activities = acts
	notes := m.notifications[:0]
	for _, n := range m.notifications {
		if n.DocumentID != id {
			notes = append(notes, n)
		}
	}
	m.notifications = notes
	for pid, p := range m.prints {
		if p.DocumentID == id {
			delete(m.prints, pid)
		}
	}
	return nil
}

// AppendActivity stores an audit record. The document must exist.
func (m *MemoryStore) AppendActivity(_ context.Context, a *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[a.DocumentID]; !ok {
		return fmt.Errorf("document %d: %w", a.DocumentID, model.ErrNotFound)
	}
	if a.UserID != nil {
		if _, ok := m.users[*a.UserID]; !ok {
			return fmt.Errorf("user %d: %w", *a.UserID, model.ErrConflict)
		}
	}
	a.ID = m.nextID()
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now().UTC()
	}
	cp := *a
	if a.UserID != nil {
		id := *a.UserID
		cp.UserID = &id
	}
	if a.DepartmentID != nil {
		id := *a.DepartmentID
		cp.DepartmentID = &id
	}
	m.activities = append(m.activities, &cp)
	return nil
}

func (m *MemoryStore) activityCopy(a *model.Activity) model.Activity {
	cp := *a
	if d, ok := m.documents[a.DocumentID]; ok {
		cp.DocumentTitle = d.Title
	}
	cp.Username = ""
	if a.UserID != nil {
		if u, ok := m.users[*a.UserID]; ok {
			cp.Username = u.Username
		}
	}
	cp.DepartmentName = ""
	if a.DepartmentID != nil {
		if d, ok := m.departments[*a.DepartmentID]; ok {
			cp.DepartmentName = d.Name
		}
	}
	return cp
}

// ListActivities pages through the trail, newest first.
func (m *MemoryStore) ListActivities(_ context.Context, offset, limit int) ([]model.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sorted := make([]*model.Activity, len(m.activities))
	copy(sorted, m.activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(sorted) {
		return []model.Activity{}, nil
	}
	sorted = sorted[offset:]
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	out := make([]model.Activity, 0, len(sorted))
	for _, a := range sorted {
		out = append(out, m.activityCopy(a))
	}
	return out, nil
}
