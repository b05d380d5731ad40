package model

import "time"

// Department groups users and owns documents. Deactivating a department
// hides it from pickers but never removes what references it.
type Department struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Code     *string `json:"code,omitempty"`
	IsActive bool    `json:"isActive"`
}

// User is an authenticated principal. Groups carries the authorization
// signal; see package identity for the role predicates built on it.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	PasswordHash   string    `json:"-"`
	DepartmentID   *int64    `json:"departmentId,omitempty"`
	DepartmentName string    `json:"departmentName,omitempty"`
	IsSuperuser    bool      `json:"isSuperuser"`
	IsActive       bool      `json:"isActive"`
	Groups         []string  `json:"groups,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// InDepartment reports whether the user belongs to departmentID.
func (u *User) InDepartment(departmentID int64) bool {
	return u.DepartmentID != nil && *u.DepartmentID == departmentID
}
