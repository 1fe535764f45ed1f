package repository

import "errors"

// ErrDuplicateKey signals a unique constraint violation on id or login.
var ErrDuplicateKey = errors.New("duplicate key")
