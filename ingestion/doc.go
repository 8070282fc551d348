// Package ingestion turns uploaded documents into embedded chunks.
//
// A Pipeline loads a file page by page, splits each page into overlapping
// windows, embeds the windows one at a time under a rate limiter, and writes
// all chunks with a single bulk insert. Failures are reported as ErrLoad,
// ErrEmbedding or ErrPersistence so the job queue can retry the whole file.
package ingestion
