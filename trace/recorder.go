package trace

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// Recorder receives trace events. Implementations must be safe for
// concurrent use and should not block.
type Recorder interface {
	Record(event Event)
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

func (NoopRecorder) Record(Event) {}

// MultiRecorder sends events to several recorders in order.
type MultiRecorder struct {
	recorders []Recorder
}

func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

func (m *MultiRecorder) Record(event Event) {
	for _, r := range m.recorders {
		r.Record(event)
	}
}

// SlogRecorder writes events to an slog.Logger at Debug level.
type SlogRecorder struct {
	logger *slog.Logger
}

func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

func (s *SlogRecorder) Record(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.Session),
		slog.Uint64("seq", event.Seq),
		slog.String("kind", event.Kind.String()),
		slog.String("header", hex.EncodeToString(event.Header)),
	}
	if event.Register != "" {
		attrs = append(attrs, slog.String("register", event.Register))
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs,
			slog.Int("len", len(event.Payload)),
			slog.String("payload", hex.EncodeToString(truncate(event.Payload, 32))),
		)
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if event.Err != "" {
		attrs = append(attrs, slog.String("error", event.Err))
	}

	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*MultiRecorder)(nil)
	_ Recorder = (*SlogRecorder)(nil)
)
