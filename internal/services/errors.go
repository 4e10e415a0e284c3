package services

import (
	"errors"
	"fmt"
	"time"
)

// Catalog failure kinds; match with errors.Is
var (
	ErrNetwork     = errors.New("network error")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
)

// CatalogError describes a failed catalog call
type CatalogError struct {
	Op         string
	Kind       error
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *CatalogError) Error() string {
	msg := fmt.Sprintf("catalog %s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CatalogError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RetryAfter returns the upstream back-off hint carried by err, if any
func RetryAfter(err error) (time.Duration, bool) {
	var ce *CatalogError
	if errors.As(err, &ce) && ce.RetryAfter > 0 {
		return ce.RetryAfter, true
	}
	return 0, false
}
