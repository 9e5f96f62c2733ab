package models

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNoRecord        = errors.New("models: no matching record found")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrAlreadyResolved = errors.New("request already resolved")
	ErrRateLimited     = errors.New("too many requests")
)

// ValidationErrors maps an input field to the reason it was rejected.
// It matches ErrValidation with errors.Is.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Add records a problem with field. The first reason for a field wins.
func (v ValidationErrors) Add(field, reason string) {
	if _, ok := v[field]; !ok {
		v[field] = reason
	}
}

// Err returns nil when nothing was recorded.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
