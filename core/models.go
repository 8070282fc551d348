package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored chunks.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DefaultPageNumber is used when a loader cannot tell which page text came from.
const DefaultPageNumber = 1

// ChunkMetadata locates a chunk inside its originating document.
type ChunkMetadata struct {
	SourceFile string `json:"sourceFile" msgpack:"source_file"`
	PageNumber int    `json:"pageNumber" msgpack:"page_number"`
}

// Chunk is a bounded span of document text plus its embedding vector.
// Chunks are written in bulk by ingestion and never mutated afterwards.
type Chunk struct {
	Id             ID            `json:"id" msgpack:"id"`
	Content        string        `json:"content" msgpack:"content"`
	Metadata       ChunkMetadata `json:"metadata" msgpack:"metadata"`
	Vector         []float32     `json:"-" msgpack:"vector"`
	EmbeddingModel string        `json:"embeddingModel" msgpack:"embedding_model"`
	ContentHash    ID            `json:"contentHash" msgpack:"content_hash"` // recorded, not used for dedup
	CreatedAt      time.Time     `json:"createdAt" msgpack:"created_at"`
}

// EmbeddingSpace identifies the model and dimensionality shared by every
// vector in a chunk store. Scores across spaces are meaningless.
type EmbeddingSpace struct {
	Model      string `json:"model" msgpack:"model"`
	Dimensions int    `json:"dimensions" msgpack:"dimensions"`
}

// Matches reports whether other describes the same space.
func (s EmbeddingSpace) Matches(other EmbeddingSpace) bool {
	return s.Model == other.Model && s.Dimensions == other.Dimensions
}

// ChunkFilter selects chunks for deletion. The zero value selects every chunk.
type ChunkFilter struct {
	SourceFile string
}

// IsEmpty reports whether the filter selects the whole store.
func (f ChunkFilter) IsEmpty() bool {
	return f.SourceFile == ""
}

// VectorQuery is a nearest-neighbor request against a chunk store.
type VectorQuery struct {
	Vector     []float32
	Model      string // embedding model that produced Vector
	K          int    // results to return
	Candidates int    // candidate pool the index may re-rank from
}

// SearchResult is a chunk matched by vector search with its similarity score.
type SearchResult struct {
	Chunk *Chunk
	Score float32
}

// JobState is the lifecycle state of an ingestion job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobPayload carries the work description of an ingestion job.
type JobPayload struct {
	FilePath string `json:"filePath" msgpack:"file_path"`
	// OriginalName is the name the document was uploaded under. Chunks are
	// attributed to it instead of the stored file name when set.
	OriginalName string `json:"originalName,omitempty" msgpack:"original_name,omitempty"`
}

// Job is a unit of queued ingestion work.
type Job struct {
	ID          string     `json:"id" msgpack:"id"`
	Payload     JobPayload `json:"payload" msgpack:"payload"`
	State       JobState   `json:"state" msgpack:"state"`
	Attempts    int        `json:"attempts" msgpack:"attempts"`
	MaxAttempts int        `json:"maxAttempts" msgpack:"max_attempts"`
	LastError   string     `json:"lastError,omitempty" msgpack:"last_error"`
	Seq         uint64     `json:"seq" msgpack:"seq"`
	EnqueuedAt  time.Time  `json:"enqueuedAt" msgpack:"enqueued_at"`
	RunAt       time.Time  `json:"runAt" msgpack:"run_at"`
	UpdatedAt   time.Time  `json:"updatedAt" msgpack:"updated_at"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationTurn is one message of a chat history.
type ConversationTurn struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ToolInvocation records a tool call made while answering a question.
// It is produced per query and never persisted.
type ToolInvocation struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
}

// Source is a retrieved chunk cited by an answer.
type Source struct {
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
	SourceFile string  `json:"sourceFile,omitempty"`
	PageNumber int     `json:"pageNumber,omitempty"`
}

// ConversationContext summarizes how much history informed an answer.
type ConversationContext struct {
	MessageCount int  `json:"messageCount"`
	HasHistory   bool `json:"hasHistory"`
}

// AnswerMetadata describes how an answer was produced.
type AnswerMetadata struct {
	Model            string `json:"model"`
	EmbeddingModel   string `json:"embeddingModel"`
	ProcessingTimeMs int64  `json:"processingTime"`
	FallbackMode     bool   `json:"fallbackMode"`
}

// AgentAnswer is the orchestrator's result for one question.
type AgentAnswer struct {
	Answer              string              `json:"answer"`
	Sources             []Source            `json:"sources"`
	ToolsCalled         []ToolInvocation    `json:"toolsCalled"`
	ConversationContext ConversationContext `json:"conversationContext"`
	Metadata            AnswerMetadata      `json:"metadata"`
}
