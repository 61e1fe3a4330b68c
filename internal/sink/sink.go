// Package sink defines where projected deltas go.
//
// A Sink receives every delta of a run exactly once, in Seq order, from the
// engine's single goroutine. A non-nil error from Emit aborts the run; the
// engine never retries and never rolls back deltas already emitted.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/loopmerge/internal/ir"
)

// Sink consumes projected deltas.
type Sink interface {
	Emit(ctx context.Context, d ir.Delta) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, d ir.Delta) error

// Emit calls f.
func (f Func) Emit(ctx context.Context, d ir.Delta) error {
	return f(ctx, d)
}

// Discard drops every delta.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, ir.Delta) error { return nil }

// Recorder keeps every delta in memory. Used by tests and the scenario
// harness.
type Recorder struct {
	mu     sync.Mutex
	deltas []ir.Delta
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends d.
func (r *Recorder) Emit(_ context.Context, d ir.Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, d)
	return nil
}

// Deltas returns a copy of everything recorded so far.
func (r *Recorder) Deltas() []ir.Delta {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Delta, len(r.deltas))
	copy(out, r.deltas)
	return out
}

// Len returns the number of recorded deltas.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltas)
}

// Kinds returns the kind of every recorded delta, in order.
func (r *Recorder) Kinds() []ir.DeltaKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.DeltaKind, len(r.deltas))
	for i, d := range r.deltas {
		out[i] = d.Kind
	}
	return out
}

// Log writes one structured log record per delta, with the entity path as
// the message. This is the structured telemetry viewer rendering.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog creates a log sink. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, level: level}
}

// Emit logs d.
func (l *Log) Emit(ctx context.Context, d ir.Delta) error {
	attrs := []slog.Attr{
		slog.Int64("seq", d.Seq),
		slog.Int64("loop", d.Loop),
		slog.String("kind", string(d.Kind)),
		slog.Float64("x", d.Position.X),
		slog.Float64("y", d.Position.Y),
		slog.Float64("z", d.Position.Z),
	}
	if d.Tag != nil {
		attrs = append(attrs, slog.String("tag", d.Tag.String()))
	}
	if d.Player != nil {
		attrs = append(attrs, slog.Int64("player", *d.Player))
	}
	if d.Origin != nil {
		attrs = append(attrs,
			slog.Float64("from_x", d.Origin.X),
			slog.Float64("from_y", d.Origin.Y),
		)
	}
	if d.Color != 0 {
		attrs = append(attrs, slog.String("color", d.Color.Hex()))
	}
	if d.Radius != 0 {
		attrs = append(attrs, slog.Float64("radius", d.Radius))
	}
	if d.Label != "" {
		attrs = append(attrs, slog.String("label", d.Label))
	}
	if d.Value != nil {
		attrs = append(attrs, slog.Float64("value", *d.Value))
	}
	l.logger.LogAttrs(ctx, l.level, d.Path, attrs...)
	return nil
}

// JSONLines writes each delta as one line of canonical JSON.
type JSONLines struct {
	w io.Writer
}

// NewJSONLines creates a JSON-lines sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// Emit writes d followed by a newline.
func (j *JSONLines) Emit(_ context.Context, d ir.Delta) error {
	line, err := ir.MarshalCanonical(d.Canonical())
	if err != nil {
		return fmt.Errorf("marshal delta %d: %w", d.Seq, err)
	}
	line = append(line, '\n')
	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("write delta %d: %w", d.Seq, err)
	}
	return nil
}

// Multi fans each delta out to every sink in order.
// The first failing sink stops the fan-out for that delta.
type Multi []Sink

// Emit forwards d to every sink.
func (m Multi) Emit(ctx context.Context, d ir.Delta) error {
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, d); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// ErrClosed is returned by sinks that no longer accept deltas.
var ErrClosed = errors.New("sink closed")
