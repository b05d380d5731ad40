package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// CreateNotifications stores a batch of notifications.
func (m *MemoryStore) CreateNotifications(_ context.Context, batch []model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range batch {
		if _, ok := m.documents[batch[i].DocumentID]; !ok {
			return fmt.Errorf("document %d: %w", batch[i].DocumentID, model.ErrNotFound)
		}
		if _, ok := m.users[batch[i].RecipientID]; !ok {
			return fmt.Errorf("recipient %d: %w", batch[i].RecipientID, model.ErrNotFound)
		}
	}
	now := m.now().UTC()
	for i := range batch {
		batch[i].ID = m.nextID()
		if batch[i].CreatedAt.IsZero() {
			batch[i].CreatedAt = now
		}
		n := batch[i]
		m.notifications = append(m.notifications, &n)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (m *MemoryStore) ListNotifications(_ context.Context, recipientID int64, limit int) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Notification, 0)
	for _, n := range m.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		cp := *n
		if d, ok := m.documents[n.DocumentID]; ok {
			cp.DocumentTitle = d.Title
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountUnread returns how many notifications recipientID has not read.
func (m *MemoryStore) CountUnread(_ context.Context, recipientID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, note := range m.notifications {
		if note.RecipientID == recipientID && !note.IsRead {
			n++
		}
	}
	return n, nil
}

// MarkNotificationRead flags a notification owned by recipientID as read.
func (m *MemoryStore) MarkNotificationRead(_ context.Context, id, recipientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			n.IsRead = true
			return nil
		}
	}
	return model.ErrNotFound
}

// CreatePrintRequest files a pending print request.
func (m *MemoryStore) CreatePrintRequest(_ context.Context, p *model.PrintRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[p.DocumentID]; !ok {
		return fmt.Errorf("document %d: %w", p.DocumentID, model.ErrNotFound)
	}
	if _, ok := m.users[p.UserID]; !ok {
		return fmt.Errorf("user %d: %w", p.UserID, model.ErrNotFound)
	}
	p.ID = m.nextID()
	p.Status = model.PrintPending
	p.CreatedAt = m.now().UTC()
	cp := *p
	m.prints[p.ID] = &cp
	return nil
}

func (m *MemoryStore) printCopy(p *model.PrintRequest) model.PrintRequest {
	cp := *p
	if u, ok := m.users[p.UserID]; ok {
		cp.Username = u.Username
	}
	if d, ok := m.documents[p.DocumentID]; ok {
		cp.DocumentTitle = d.Title
	}
	return cp
}

// GetPrintRequest returns a print request by id.
func (m *MemoryStore) GetPrintRequest(_ context.Context, id int64) (*model.PrintRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prints[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := m.printCopy(p)
	return &cp, nil
}

// ListPrintRequests returns requests with the given status, oldest first. An
// empty status returns all of them.
func (m *MemoryStore) ListPrintRequests(_ context.Context, status model.PrintStatus) ([]model.PrintRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PrintRequest, 0)
	for _, p := range m.prints {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, m.printCopy(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DecidePrintRequest approves or rejects a pending request. Deciding twice
// returns model.ErrConflict.
func (m *MemoryStore) DecidePrintRequest(_ context.Context, id, handlerID int64, status model.PrintStatus, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prints[id]
	if !ok {
		return model.ErrNotFound
	}
	if p.Status != model.PrintPending {
		return fmt.Errorf("print request %d already %s: %w", id, p.Status, model.ErrConflict)
	}
	at := m.now().UTC()
	p.Status = status
	p.HandledBy = &handlerID
	p.HandledAt = &at
	p.Notes = notes
	return nil
}
