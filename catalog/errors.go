package catalog

import (
	"errors"
	"fmt"
)

// ErrDataLoad is matched by every LoadError.
var ErrDataLoad = errors.New("data load failed")

// errNotFound is returned by a fetcher when a resource does not exist.
var errNotFound = errors.New("resource not found")

// LoadError reports a failed catalog, payer directory or rate table fetch.
// Loads are not retried; the caller surfaces the failure and waits for a
// user-initiated reload.
type LoadError struct {
	Resource string // "catalog", "payers" or "rates"
	Locator  string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %s: %v", e.Resource, e.Locator, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrDataLoad
}

// IsNotFound reports whether err means the requested resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
