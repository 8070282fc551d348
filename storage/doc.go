// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the storage abstraction layer for opsmind.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic:
//
//   - ChunkRepository: bulk insert, count, purge and vector search over chunks
//   - JobRepository: the durable schedule behind the ingestion queue
//
// # Implementations
//
//   - storage/badger: BadgerDB, implements both repositories (the default)
//   - storage/chromem: chromem-go embedded vector database, chunks only
//   - storage/postgres: Postgres with pgvector through bun, chunks only
//
// # Embedding Space
//
// Scores are only comparable between vectors of one model and one
// dimensionality. Every ChunkRepository records that space with its first
// insert and rejects mismatching inserts and queries with
// ErrEmbeddingSpaceMismatch. Purging the whole store forgets the space.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/var/lib/opsmind", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	chunks, err := badger.NewChunkRepository(backend)
//	jobs, err := badger.NewJobRepository(backend)
//
// Use in tests with in-memory storage:
//
//	chunks, jobs, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
