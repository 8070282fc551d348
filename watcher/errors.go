package watcher

import "errors"

var (
	// ErrDirRequired is returned when no directory is given.
	ErrDirRequired = errors.New("watch directory required")

	// ErrEnqueuerRequired is returned when no enqueuer is given.
	ErrEnqueuerRequired = errors.New("enqueuer required")
)
