package policy

import (
	"sort"

	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// Scope selects which documents a listing may contain.
type Scope int

const (
	// ScopeNone matches nothing.
	ScopeNone Scope = iota
	// ScopeAll matches every document, optionally within one department.
	ScopeAll
	// ScopeDepartment matches the actor's department plus explicit shares.
	ScopeDepartment
	// ScopeOwn matches documents the actor created plus explicit shares.
	ScopeOwn
)

// ListFilter is the set-filtering form of CanView. Stores translate it to a
// query; Match applies it in memory.
type ListFilter struct {
	Scope Scope
	// UserID is the actor, used for creator and reader matches.
	UserID int64
	// DepartmentID is the manager's own department for ScopeDepartment, or
	// the explicitly requested department for ScopeAll. Nil means none.
	DepartmentID *int64
	// ExcludeArchived hides archived documents.
	ExcludeArchived bool
	// DisabledLast sorts disabled documents after the others.
	DisabledLast bool
}

// ListFilterFor builds the listing filter for u. requestedDepartment is only
// honored for privileged users.
func ListFilterFor(u *model.User, requestedDepartment *int64) ListFilter {
	switch {
	case u == nil:
		return ListFilter{Scope: ScopeNone}
	case identity.IsPrivileged(u):
		return ListFilter{Scope: ScopeAll, UserID: u.ID, DepartmentID: requestedDepartment, DisabledLast: true}
	case identity.IsManager(u):
		return ListFilter{Scope: ScopeDepartment, UserID: u.ID, DepartmentID: u.DepartmentID, ExcludeArchived: true}
	case identity.IsEmployee(u):
		return ListFilter{Scope: ScopeOwn, UserID: u.ID, ExcludeArchived: true}
	}
	return ListFilter{Scope: ScopeNone}
}

// Match reports whether doc belongs in a listing built from f.
func (f ListFilter) Match(doc *model.Document) bool {
	if f.ExcludeArchived && doc.Status == model.StatusArchived {
		return false
	}
	switch f.Scope {
	case ScopeAll:
		return f.DepartmentID == nil || doc.DepartmentID == *f.DepartmentID
	case ScopeDepartment:
		if f.DepartmentID != nil && doc.DepartmentID == *f.DepartmentID {
			return true
		}
		return doc.HasReader(f.UserID)
	case ScopeOwn:
		return doc.CreatedByUser(f.UserID) || doc.HasReader(f.UserID)
	}
	return false
}

// Filter returns the matching documents in listing order without duplicates.
func (f ListFilter) Filter(docs []*model.Document) []*model.Document {
	seen := make(map[int64]bool, len(docs))
	out := make([]*model.Document, 0, len(docs))
	for _, d := range docs {
		if seen[d.ID] || !f.Match(d) {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	f.Sort(out)
	return out
}

// Sort orders docs by most recently updated, with disabled documents moved to
// the end when DisabledLast is set. Ties fall back to id descending.
func (f ListFilter) Sort(docs []*model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if f.DisabledLast {
			ad, bd := a.Status == model.StatusDisabled, b.Status == model.StatusDisabled
			if ad != bd {
				return !ad
			}
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}
