package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"wasmScope/internal/model"
)

const maxLineSize = 10 * 1024 * 1024

// JSONL reads one message per line from a file or reader.
type JSONL struct {
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
}

// OpenJSONL opens the JSONL file at path.
func OpenJSONL(path string) (*JSONL, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	src := NewJSONL(file)
	src.closer = file
	return src, nil
}

// NewJSONL reads messages from r. Closing the source does not close r.
func NewJSONL(r io.Reader) *JSONL {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	return &JSONL{scanner: scanner}
}

func (s *JSONL) Next(ctx context.Context) (model.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.Message{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return model.Message{}, fmt.Errorf("scan input: %w", err)
			}
			return model.Message{}, ErrExhausted
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return model.Message{}, fmt.Errorf("line %d: %w: %v", s.line, ErrMalformed, err)
		}
		return msg, nil
	}
}

// Commit is a no-op; file positions are tracked by the runner's checkpoint.
func (s *JSONL) Commit(context.Context) error { return nil }

func (s *JSONL) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
