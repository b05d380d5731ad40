// Package identity derives roles from group membership. The group a user
// belongs to is the only authorization signal; there is no stored role.
package identity

import (
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// Group names as they are stored in user_groups.
const (
	GroupEmployees = "Employees"
	GroupManagers  = "Managers"
	GroupQuality   = "Quality"
	GroupAdmin     = "admin_role"
)

// KnownGroups lists the groups the application understands.
var KnownGroups = []string{GroupEmployees, GroupManagers, GroupQuality, GroupAdmin}

// IsKnownGroup reports whether name is one of KnownGroups.
func IsKnownGroup(name string) bool {
	for _, g := range KnownGroups {
		if g == name {
			return true
		}
	}
	return false
}

// Role is the single highest-precedence role of a user.
type Role int

const (
	RoleNone Role = iota
	RoleEmployee
	RoleManager
	RoleQuality
	RoleAdmin
	RoleSuperuser
)

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return "employee"
	case RoleManager:
		return "manager"
	case RoleQuality:
		return "quality"
	case RoleAdmin:
		return "admin"
	case RoleSuperuser:
		return "superuser"
	}
	return "none"
}

// InGroup reports whether an active user is a member of group.
func InGroup(u *model.User, group string) bool {
	if u == nil || !u.IsActive {
		return false
	}
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func IsEmployee(u *model.User) bool  { return InGroup(u, GroupEmployees) }
func IsManager(u *model.User) bool   { return InGroup(u, GroupManagers) }
func IsQuality(u *model.User) bool   { return InGroup(u, GroupQuality) }
func IsAdminRole(u *model.User) bool { return InGroup(u, GroupAdmin) }

// IsSuperuser reports the superuser flag of an active user.
func IsSuperuser(u *model.User) bool {
	return u != nil && u.IsActive && u.IsSuperuser
}

// IsPrivileged covers quality, admin_role and superusers: full visibility and
// document management rights.
func IsPrivileged(u *model.User) bool {
	return IsQuality(u) || IsAdminRole(u) || IsSuperuser(u)
}

// RoleOf returns the highest-precedence role of u.
func RoleOf(u *model.User) Role {
	switch {
	case IsSuperuser(u):
		return RoleSuperuser
	case IsAdminRole(u):
		return RoleAdmin
	case IsQuality(u):
		return RoleQuality
	case IsManager(u):
		return RoleManager
	case IsEmployee(u):
		return RoleEmployee
	}
	return RoleNone
}

// CanLogin rejects accounts that are inactive or carry no authorized group.
func CanLogin(u *model.User) bool {
	return RoleOf(u) != RoleNone
}
