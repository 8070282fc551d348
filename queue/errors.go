package queue

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrHandlerRequired is returned when a job handler is not provided.
	ErrHandlerRequired = errors.New("job handler required")

	// ErrMissingFilePath is returned for jobs without a file to ingest.
	// Such jobs fail without retry.
	ErrMissingFilePath = errors.New("filePath is required")

	// ErrStalled is recorded on a job whose last attempt ended with the worker
	// process, once that attempt was its final one.
	ErrStalled = errors.New("job stalled: worker stopped before finishing the attempt")

	// ErrAlreadyRunning is returned when Run is called on a queue whose worker is active.
	ErrAlreadyRunning = errors.New("queue worker already running")
)
