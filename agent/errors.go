package agent

import "errors"

var (
	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrRetrieval wraps failures to fetch context for a question.
	ErrRetrieval = errors.New("failed to retrieve context")

	// ErrUnknownTool is returned when a tool name has no registered handler.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolExecution wraps failures raised by a tool handler.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrUnknownUser is returned by a leave directory with no entry for a user
	// and no default entry.
	ErrUnknownUser = errors.New("unknown user")
)
