package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLine = 1 << 20

// Source produces jobs until it is exhausted or ctx is canceled. It must not
// close out.
type Source interface {
	Run(ctx context.Context, out chan<- schemas.Request) error
}

// parseLine decodes one JSON-lines job. Blank lines and lines starting with
// '#' yield ok == false.
func parseLine(line []byte) (req schemas.Request, ok bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return req, false, nil
	}
	if err := json.Unmarshal(line, &req); err != nil {
		return req, false, err
	}
	if req.URL == "" {
		return req, false, fmt.Errorf("job has no url")
	}
	return req, true, nil
}

func send(ctx context.Context, out chan<- schemas.Request, req schemas.Request) error {
	select {
	case out <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReaderSource reads JSON-lines jobs from r. Malformed lines are logged and
// skipped.
type ReaderSource struct {
	r      io.Reader
	logger *zap.Logger
}

func NewReaderSource(r io.Reader, logger *zap.Logger) *ReaderSource {
	return &ReaderSource{r: r, logger: logger.Named("source")}
}

func (s *ReaderSource) Run(ctx context.Context, out chan<- schemas.Request) error {
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	n := 0
	for sc.Scan() {
		n++
		req, ok, err := parseLine(sc.Bytes())
		if err != nil {
			s.logger.Warn("Skipping malformed job line", zap.Int("line", n), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := send(ctx, out, req); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read jobs: %w", err)
	}
	return nil
}

// FileSource reads a JSON-lines job file once.
type FileSource struct {
	path   string
	logger *zap.Logger
}

func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

func (s *FileSource) Run(ctx context.Context, out chan<- schemas.Request) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open job file: %w", err)
	}
	defer f.Close()
	return NewReaderSource(f, s.logger).Run(ctx, out)
}

// TailSource follows a JSON-lines job file, picking up lines appended after
// start, until ctx is canceled.
type TailSource struct {
	path   string
	poll   bool
	logger *zap.Logger
}

// NewTailSource follows path. With poll set the file is polled instead of
// watched through inotify.
func NewTailSource(path string, poll bool, logger *zap.Logger) *TailSource {
	return &TailSource{path: path, poll: poll, logger: logger.Named("tail")}
}

func (s *TailSource) Run(ctx context.Context, out chan<- schemas.Request) error {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      s.poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow job file: %w", err)
	}
	defer t.Cleanup()
	defer func() {
		if err := t.Stop(); err != nil {
			s.logger.Debug("Tail stopped with error", zap.Error(err))
		}
	}()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			n++
			if line.Err != nil {
				s.logger.Warn("Tail read error", zap.Error(line.Err))
				continue
			}
			req, ok, err := parseLine([]byte(line.Text))
			if err != nil {
				s.logger.Warn("Skipping malformed job line", zap.Int("line", n), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			if err := send(ctx, out, req); err != nil {
				return err
			}
		}
	}
}
