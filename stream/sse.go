package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const dataPrefix = "data: "

// SSEWriter writes frames as Server-Sent Events, flushing after each one
// when the underlying writer supports it.
type SSEWriter struct {
	mu sync.Mutex
	w  io.Writer
	fl http.Flusher
}

var _ Sink = (*SSEWriter)(nil)

// NewSSEWriter wraps w.
func NewSSEWriter(w io.Writer) *SSEWriter {
	fl, _ := w.(http.Flusher)
	return &SSEWriter{w: w, fl: fl}
}

// PrepareHeaders sets the response headers of an event stream.
func PrepareHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Send writes one "data: {json}\n\n" record.
func (w *SSEWriter) Send(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return err
	}
	if w.fl != nil {
		w.fl.Flush()
	}
	return nil
}

// ReadFrames parses an event stream written by SSEWriter. Lines that are not
// data records are ignored.
func ReadFrames(r io.Reader) ([]Frame, error) {
	var frames []Frame
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		payload, ok := bytes.CutPrefix(line, []byte(dataPrefix))
		if !ok {
			continue
		}
		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil {
			return frames, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		frames = append(frames, f)
	}
	return frames, scanner.Err()
}
