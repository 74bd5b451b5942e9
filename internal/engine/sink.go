package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// ResultSink receives every finished result.
type ResultSink interface {
	Write(ctx context.Context, r schemas.Result) error
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(ctx context.Context, r schemas.Result) error

func (f SinkFunc) Write(ctx context.Context, r schemas.Result) error { return f(ctx, r) }

// ResultSaver is the slice of the results store the engine needs.
type ResultSaver interface {
	SaveResult(ctx context.Context, r schemas.Result) error
}

// StoreSink persists results to the database.
func StoreSink(s ResultSaver) ResultSink {
	return SinkFunc(s.SaveResult)
}

// JSONLSink writes one JSON document per result, screenshot inlined as a
// data URL.
type JSONLSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

func NewJSONLSink(w io.Writer) *JSONLSink { return &JSONLSink{w: w} }

// OpenJSONLSink appends to the file at path, creating it if needed.
func OpenJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}
	return &JSONLSink{w: f, closer: f}, nil
}

func (s *JSONLSink) Write(_ context.Context, r schemas.Result) error {
	b, err := json.Marshal(r.View())
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", r.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(b, '\n'))
	return err
}

func (s *JSONLSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
