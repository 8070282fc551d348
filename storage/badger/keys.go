package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/opsmind/core"
)

// Key prefixes for different data types.
// Prefixes sharing a stem differ before any variable part, so prefix scans
// never bleed into each other.
const (
	chunkPrefix       = "chunk:"
	chunkSourcePrefix = "chunksrc:"
	chunkSpaceKey     = "chunkspace"
	chunkIDSeq        = "chunkseq"
	jobPrefix         = "job:"
	jobReadyPrefix    = "jobready:"
	jobSeq            = "jobseq"
)

// makeChunkKey generates a key for a chunk by ID.
// Format: prefix + 8-byte big-endian ID
func makeChunkKey(id core.ID) []byte {
	buf := make([]byte, len(chunkPrefix)+8)
	offset := copy(buf, chunkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialChunkSourceKey generates the prefix of all index keys for one source file.
// Format: prefix + sourceFile + 0x00
func makePartialChunkSourceKey(sourceFile string) []byte {
	buf := make([]byte, 0, len(chunkSourcePrefix)+len(sourceFile)+1)
	buf = append(buf, chunkSourcePrefix...)
	buf = append(buf, sourceFile...)
	return append(buf, 0)
}

// makeChunkSourceKey generates a composite key for the source file index.
// Format: prefix + sourceFile + 0x00 + 8-byte big-endian ID
func makeChunkSourceKey(sourceFile string, id core.ID) []byte {
	partial := makePartialChunkSourceKey(sourceFile)
	buf := make([]byte, len(partial)+8)
	offset := copy(buf, partial)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// chunkIDFromSourceKey extracts the trailing chunk ID of a source index key.
func chunkIDFromSourceKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id string) []byte {
	return []byte(jobPrefix + id)
}

// makeJobReadyKey generates a composite key for the ready schedule.
// Format: prefix + 8-byte runAt (unix micros) + 8-byte seq, both big-endian
// so lexicographic order is (runAt, seq) order.
func makeJobReadyKey(runAt time.Time, seq uint64) []byte {
	buf := make([]byte, len(jobReadyPrefix)+16)
	offset := copy(buf, jobReadyPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(runAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// runAtFromReadyKey extracts the schedule time of a ready key.
func runAtFromReadyKey(key []byte) time.Time {
	micros := binary.BigEndian.Uint64(key[len(jobReadyPrefix):])
	return time.UnixMicro(int64(micros)).UTC()
}
