// Package report persists group results as a run progresses.
package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
)

// Entry is one line of a results stream.
type Entry struct {
	RunID string `json:"run_id"`
	batch.GroupResult
}

// FileSink appends one JSON object per group result and syncs after every
// write, so results that were recorded survive a crash.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// OpenFileSink opens path for appending, creating it if needed. A partial
// line left by an earlier crash is terminated first, so new records always
// start on a line of their own.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	if err := terminateLastLine(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to repair results file: %w", err)
	}
	return &FileSink{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return err
	}
	return f.Sync()
}

// Path returns the file being written.
func (s *FileSink) Path() string {
	return s.path
}

// Record appends res to the stream.
func (s *FileSink) Record(_ context.Context, runID string, res batch.GroupResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return errors.New("results file is closed")
	}
	if err := s.enc.Encode(Entry{RunID: runID, GroupResult: res}); err != nil {
		return fmt.Errorf("failed to append result for %s: %w", res.Group, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync results file: %w", err)
	}
	return nil
}

// Close closes the underlying file. It is safe to call more than once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadFile loads every entry from a results stream. Lines that do not decode,
// such as records cut short by a crash, are skipped and their 1-based line
// numbers returned in malformed.
func ReadFile(path string) (entries []Entry, malformed []int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			malformed = append(malformed, lineNo)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read results file: %w", err)
	}
	return entries, malformed, nil
}
