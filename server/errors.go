package server

import "errors"

var (
	// ErrAnswererRequired is returned when no answerer is provided.
	ErrAnswererRequired = errors.New("answerer required")

	// ErrJobQueueRequired is returned when no job queue is provided.
	ErrJobQueueRequired = errors.New("job queue required")

	// ErrChunkCounterRequired is returned when no chunk counter is provided.
	ErrChunkCounterRequired = errors.New("chunk counter required")

	// ErrUploadDirRequired is returned when the upload directory is empty.
	ErrUploadDirRequired = errors.New("upload directory required")
)
