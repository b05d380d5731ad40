package model

import "time"

// Action is the closed set of audited operations.
type Action string

const (
	ActionView            Action = "view"
	ActionCreate          Action = "create"
	ActionEdit            Action = "edit"
	ActionDelete          Action = "delete"
	ActionAttemptDisabled Action = "attempt_disabled"
)

// Actions lists every audited action.
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionAttemptDisabled}

// Valid reports whether a is part of the closed enum.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionAttemptDisabled:
		return true
	}
	return false
}

// Label returns the display label, or the raw key for unknown values.
func (a Action) Label() string {
	switch a {
	case ActionView:
		return "Viewed"
	case ActionCreate:
		return "Created"
	case ActionEdit:
		return "Edited"
	case ActionDelete:
		return "Deleted"
	case ActionAttemptDisabled:
		return "Disabled Attempt"
	}
	return string(a)
}

// SystemActor is shown for activity whose user has since been deleted.
const SystemActor = "System"

// Activity is one append-only audit record. UserID is a weak reference: it
// becomes nil when the user is deleted while the record itself survives.
// DepartmentID is the actor's department at the time of the action.
type Activity struct {
	ID             int64     `json:"id"`
	DocumentID     int64     `json:"documentId"`
	DocumentTitle  string    `json:"documentTitle,omitempty"`
	UserID         *int64    `json:"userId,omitempty"`
	Username       string    `json:"username,omitempty"`
	DepartmentID   *int64    `json:"departmentId,omitempty"`
	DepartmentName string    `json:"departmentName,omitempty"`
	Action         Action    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
}

// Actor returns the username or the system sentinel.
func (a *Activity) Actor() string {
	if a.UserID == nil || a.Username == "" {
		return SystemActor
	}
	return a.Username
}
