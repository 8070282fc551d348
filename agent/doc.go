// Package agent answers questions from retrieved document context.
//
// An Orchestrator retrieves the chunks closest to the question, runs any tool
// the question calls for, and asks a generator for an answer grounded in that
// material. When generation fails for reasons other than bad credentials the
// orchestrator still answers, returning the raw retrieved text and tool data
// with FallbackMode set.
//
// Tools are a closed set of ToolName values bound to handlers in a Registry.
// Which tool a question needs is decided by a Classifier, a pure function of
// the question and the caller's user ID.
package agent
