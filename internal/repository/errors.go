package repository

import "errors"

// ErrNotFound indicates no record exists for the requested deployment id.
var ErrNotFound = errors.New("repository: record not found")
