package model

import "errors"

var (
	// ErrNotFound is returned by every store when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation or an invalid state change.
	ErrConflict = errors.New("conflict")
)
