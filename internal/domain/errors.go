// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the request conflicts with current state
// (for example a crew member already working at full capacity).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed input. Operations that return it have
// no side effects.
var ErrValidation = errors.New("validation failed")
