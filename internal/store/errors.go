package store

import "errors"

// ErrNotFound is returned when a row does not exist. Callers translate it to
// their own not-found semantics; stores never wrap it.
var ErrNotFound = errors.New("not found")
