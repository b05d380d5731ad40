// Package model contains simple struct definitions shared across packages.
package model

import (
	"fmt"
	"time"
)

// DocumentStatus describes where a document sits in its lifecycle. A named
// string type keeps stray values from sneaking in where a status is expected.
type DocumentStatus string

const (
	StatusActive   DocumentStatus = "active"
	StatusDisabled DocumentStatus = "disabled"
	StatusArchived DocumentStatus = "archived"
)

// DocumentStatuses lists every status in display order.
var DocumentStatuses = []DocumentStatus{StatusActive, StatusDisabled, StatusArchived}

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusArchived:
		return true
	}
	return false
}

// Label returns the human readable form used by templates.
func (s DocumentStatus) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusDisabled:
		return "Disabled"
	case StatusArchived:
		return "Archived"
	}
	return string(s)
}

// Document is a single PDF owned by one department. ReaderIDs is the explicit
// reader allow-list; it is owned by the document and removed with it.
type Document struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	DepartmentID   int64  `json:"departmentId"`
	DepartmentName string `json:"departmentName,omitempty"`
	// ObjectKey locates the PDF in blob storage and never leaves the server.
	ObjectKey      string         `json:"-"`
	FileName       string         `json:"fileName"`
	FileSize       int64          `json:"fileSize"`
	PageCount      *int           `json:"pageCount,omitempty"`
	Status         DocumentStatus `json:"status"`
	DisabledReason string         `json:"disabledReason,omitempty"`
	CreatedBy      *int64         `json:"createdBy,omitempty"`
	CreatedByName  string         `json:"createdByName,omitempty"`
	ReaderIDs      []int64        `json:"readerIds,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// CheckState rejects an unknown status and a disabled document without a
// reason.
func (d *Document) CheckState() error {
	if !d.Status.Valid() {
		return fmt.Errorf("status %q: %w", d.Status, ErrConflict)
	}
	if d.Status == StatusDisabled && d.DisabledReason == "" {
		return fmt.Errorf("disabled without reason: %w", ErrConflict)
	}
	return nil
}

// HasReader reports whether userID was granted explicit read access.
func (d *Document) HasReader(userID int64) bool {
	for _, id := range d.ReaderIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CreatedByUser reports whether userID created the document.
func (d *Document) CreatedByUser(userID int64) bool {
	return d.CreatedBy != nil && *d.CreatedBy == userID
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (d *Document) Clone() *Document {
	out := *d
	if d.ReaderIDs != nil {
		out.ReaderIDs = append([]int64(nil), d.ReaderIDs...)
	}
	if d.PageCount != nil {
		n := *d.PageCount
		out.PageCount = &n
	}
	if d.CreatedBy != nil {
		id := *d.CreatedBy
		out.CreatedBy = &id
	}
	return &out
}
