// Package storage holds the error values shared by store implementations
// and the services built on them.
package storage

import "errors"

// ErrNotFound is returned when a referenced permission, branch, area or
// assignment does not exist.
var ErrNotFound = errors.New("not found")
