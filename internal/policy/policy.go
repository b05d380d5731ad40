// Package policy decides who may see and manage documents. Everything here is
// a pure function of its inputs: no I/O and no logging.
package policy

import (
	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// Decision is the outcome of a view check.
type Decision int

const (
	Deny Decision = iota
	Allow
	// DenyDisabled is a denial caused by the document's disabled status. It is
	// the only denial that must be recorded as an attempt.
	DenyDisabled
)

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyDisabled:
		return "deny_disabled"
	}
	return "deny"
}

// CanView evaluates the view rules in fixed order: the disabled check
// overrides sharing and ownership, then privileged roles, explicit readers,
// the manager's department and finally the employee's own documents.
func CanView(u *model.User, doc *model.Document) Decision {
	if u == nil || doc == nil {
		return Deny
	}
	privileged := identity.IsPrivileged(u)
	if doc.Status == model.StatusDisabled {
		if privileged {
			return Allow
		}
		return DenyDisabled
	}
	if privileged {
		return Allow
	}
	archived := doc.Status == model.StatusArchived
	if doc.HasReader(u.ID) {
		if archived {
			return Deny
		}
		return Allow
	}
	if identity.IsManager(u) {
		if u.InDepartment(doc.DepartmentID) && !archived {
			return Allow
		}
		return Deny
	}
	if identity.IsEmployee(u) {
		if doc.CreatedByUser(u.ID) && !archived {
			return Allow
		}
		return Deny
	}
	return Deny
}

// CanManage grants create, edit and delete rights independent of any
// particular document.
func CanManage(u *model.User) bool {
	return identity.IsPrivileged(u)
}
