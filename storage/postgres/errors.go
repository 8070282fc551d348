package postgres

import "errors"

// ErrDSNRequired is returned when Open is called without a connection string.
var ErrDSNRequired = errors.New("postgres store: DSN is required")
