// Package logging builds the run logger: stderr plus the append-only run log
// file, teed into an in-memory line sink so a front end can show live
// progress without tailing the file.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink receives the rendered log lines of a run, in order.
type Sink interface {
	Append(line string)
	Lines() []string
}

// MemorySink is a thread-safe in-memory Sink.
type MemorySink struct {
	mu    sync.Mutex
	lines []string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

// Lines returns a copy of everything appended so far.
func (s *MemorySink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Write lets the sink act as a zap WriteSyncer. One write is one encoded
// entry, so it maps to one appended line.
func (s *MemorySink) Write(p []byte) (int, error) {
	s.Append(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (s *MemorySink) Sync() error { return nil }

// NewRunLogger builds the production logger for one run: JSON entries to
// stderr and the run log file, plus the sink when one is given. The file is
// opened append-only so runs accumulate like the report file does.
func NewRunLogger(path string, verbose bool, sink *MemorySink) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open run log %s: %w", path, err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(f), level))
	}
	if sink != nil {
		cores = append(cores, zapcore.NewCore(enc, sink, level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// Tail returns the last n lines, or all of them when there are fewer.
func Tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
