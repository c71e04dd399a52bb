// Package repository implements the MySQL persistence layer.  This
// file defines error values reused across repositories so that higher
// layers can distinguish failure scenarios without string matching.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.  The
// service layer maps it onto its own not-found taxonomy.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write lost against
// concurrent state, such as linking a booking to an order that is
// already linked.
var ErrConflict = errors.New("conflict")
