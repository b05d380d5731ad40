package model

import "time"

// NotificationType classifies a document change for its audience.
type NotificationType string

const (
	NotifyUpdated     NotificationType = "updated"
	NotifyDisabled    NotificationType = "disabled"
	NotifyReactivated NotificationType = "reactivated"
)

// Label returns the display form of the type.
func (t NotificationType) Label() string {
	switch t {
	case NotifyUpdated:
		return "Document Updated"
	case NotifyDisabled:
		return "Document Disabled"
	case NotifyReactivated:
		return "Document Reactivated"
	}
	return string(t)
}

// TransitionType picks the notification type for a status change.
func TransitionType(before, after DocumentStatus) NotificationType {
	switch {
	case before != StatusDisabled && after == StatusDisabled:
		return NotifyDisabled
	case before == StatusDisabled && after == StatusActive:
		return NotifyReactivated
	default:
		return NotifyUpdated
	}
}

// Notification tells a user that a document they can see changed.
type Notification struct {
	ID            int64            `json:"id"`
	RecipientID   int64            `json:"recipientId"`
	DocumentID    int64            `json:"documentId"`
	DocumentTitle string           `json:"documentTitle,omitempty"`
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	IsRead        bool             `json:"isRead"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// PrintStatus tracks a print request through approval.
type PrintStatus string

const (
	PrintPending  PrintStatus = "pending"
	PrintApproved PrintStatus = "approved"
	PrintRejected PrintStatus = "rejected"
)

// PrintRequest asks a manager for permission to print a document.
type PrintRequest struct {
	ID            int64       `json:"id"`
	UserID        int64       `json:"userId"`
	Username      string      `json:"username,omitempty"`
	DocumentID    int64       `json:"documentId"`
	DocumentTitle string      `json:"documentTitle,omitempty"`
	Reason        string      `json:"reason"`
	Status        PrintStatus `json:"status"`
	HandledBy     *int64      `json:"handledBy,omitempty"`
	HandledAt     *time.Time  `json:"handledAt,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}
