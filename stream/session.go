package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/opsmind/core"
)

// Sink receives frames in order.
type Sink interface {
	Send(ctx context.Context, frame Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, frame Frame) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, frame Frame) error {
	return f(ctx, frame)
}

// FailureNotice is sent to the client when a delivery aborts.
const FailureNotice = "Sorry, something went wrong while answering your question. Please try again."

// Session enforces frame ordering on a sink: content, one sources, one done.
type Session struct {
	sink        Sink
	segmentSize int
	logger      *slog.Logger

	mu          sync.Mutex
	sourcesSent bool
	closed      bool
}

// Option configures a Session.
type Option func(*Session) error

// WithSegmentSize sets the target runes per content frame.
// Default is DefaultSegmentSize.
func WithSegmentSize(n int) Option {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("segment size must be positive: %d", n)
		}
		s.segmentSize = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSession starts a session on sink.
func NewSession(sink Sink, opts ...Option) (*Session, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	s := &Session{
		sink:        sink,
		segmentSize: DefaultSegmentSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "stream")
	return s, nil
}

// Deliver streams answer on sink: its text as content frames, its sources
// as citations, then done. A cancelled ctx stops emission without done.
func Deliver(ctx context.Context, sink Sink, answer *core.AgentAnswer, opts ...Option) error {
	s, err := NewSession(sink, opts...)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, answer)
}

// Deliver streams answer on the session and closes it.
func (s *Session) Deliver(ctx context.Context, answer *core.AgentAnswer) error {
	for _, segment := range Segment(answer.Answer, s.segmentSize) {
		if err := s.Content(ctx, segment); err != nil {
			return err
		}
	}
	if err := s.Sources(ctx, Cite(answer.Sources)); err != nil {
		return err
	}
	return s.Done(ctx)
}

// Content sends a content frame. Empty text is ignored.
func (s *Session) Content(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourcesSent {
		return ErrSourcesAlreadySent
	}
	return s.send(ctx, Frame{Type: FrameContent, Data: text})
}

// Sources sends the sources frame.
func (s *Session) Sources(ctx context.Context, citations []Citation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourcesSent {
		return ErrSourcesAlreadySent
	}
	if citations == nil {
		citations = []Citation{}
	}
	if err := s.send(ctx, Frame{Type: FrameSources, Sources: citations}); err != nil {
		return err
	}
	s.sourcesSent = true
	return nil
}

// Done sends the done frame and closes the session.
func (s *Session) Done(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(ctx, Frame{Type: FrameDone}); err != nil {
		return err
	}
	s.closed = true
	return nil
}

// Fail sends a user-visible notice and closes the session. cause is logged,
// never sent to the client. Fail on a closed session is a no-op.
func (s *Session) Fail(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.logger.Warn("aborting stream", "err", cause)
	if err := s.send(ctx, Frame{Type: FrameContent, Data: FailureNotice}); err != nil {
		return err
	}
	if err := s.send(ctx, Frame{Type: FrameDone}); err != nil {
		return err
	}
	s.closed = true
	return nil
}

// Closed reports whether done has been sent.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) send(ctx context.Context, frame Frame) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sink.Send(ctx, frame)
}
