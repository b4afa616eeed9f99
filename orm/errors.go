package orm

import "errors"

// ErrNotFound is returned when a query expects exactly one row but finds none.
var ErrNotFound = errors.New("orm: not found")

// ErrNoWhere is returned by Delete when no WHERE clause has been set.
var ErrNoWhere = errors.New("orm: Delete without WHERE clause is not allowed")
