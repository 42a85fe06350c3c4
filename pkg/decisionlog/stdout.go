package decisionlog

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// StdoutSink writes one JSON line per entry.
type StdoutSink struct {
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewStdoutSink creates a sink writing to w.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{
		logger: zerolog.New(w),
	}
}

// Name implements Sink.
func (s *StdoutSink) Name() string { return "stdout" }

// Write implements Sink.
func (s *StdoutSink) Write(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Log().EmbedObject(e).Send()
	return nil
}

// Close implements Sink.
func (s *StdoutSink) Close(context.Context) error { return nil }
