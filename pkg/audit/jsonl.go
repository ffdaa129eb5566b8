package audit

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	// DefaultMaxFileSize is the size at which the active file is rotated.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// DefaultMaxFiles is the number of rotated files kept next to the active one.
	DefaultMaxFiles = 5

	// FilePermission keeps audit files readable only by the server user.
	FilePermission os.FileMode = 0o600
)

// JSONLOptions tunes rotation of a JSONLSink.
type JSONLOptions struct {
	MaxFileSize int64
	MaxFiles    int
}

// JSONLSink appends one JSON document per line to a file and rotates it
// once it grows past MaxFileSize. Rotated files are renamed to
// <name>.<timestamp><ext> and the oldest are pruned beyond MaxFiles.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	opts JSONLOptions
	file *os.File
	size int64
}

// NewJSONLSink opens (or creates) the audit file at path.
func NewJSONLSink(path string, opts JSONLOptions) (*JSONLSink, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	s := &JSONLSink{path: path, opts: opts}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the active file path.
func (s *JSONLSink) Path() string {
	return s.path
}

func (s *JSONLSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, FilePermission)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}
	s.file = f
	s.size = info.Size()
	return nil
}

// Write appends entries, rotating between lines when needed.
func (s *JSONLSink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("audit file is closed")
	}

	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		line = append(line, '\n')

		if s.size > 0 && s.size+int64(len(line)) > s.opts.MaxFileSize {
			if err := s.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit file: %w", err)
			}
		}

		n, err := s.file.Write(line)
		s.size += int64(n)
		if err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}
	}
	return nil
}

func (s *JSONLSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	s.file = nil

	ext := filepath.Ext(s.path)
	base := strings.TrimSuffix(s.path, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().UTC().Format("20060102T150405.000000000"), ext)
	if err := os.Rename(s.path, rotated); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := s.prune(); err != nil {
		return err
	}
	return s.open()
}

// rotatedFiles lists rotated siblings of the active file, oldest first.
func (s *JSONLSink) rotatedFiles() ([]string, error) {
	ext := filepath.Ext(s.path)
	pattern := strings.TrimSuffix(s.path, ext) + ".*" + ext
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if m != s.path {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *JSONLSink) prune() error {
	files, err := s.rotatedFiles()
	if err != nil {
		return err
	}
	for len(files) > s.opts.MaxFiles {
		if err := os.Remove(files[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old audit file: %w", err)
		}
		files = files[1:]
	}
	return nil
}

// Recent reads the tail of the active file.
func (s *JSONLSink) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadJSONL(s.path, limit)
}

// Close closes the active file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadJSONL parses an audit file and returns up to limit entries, newest
// first. limit <= 0 returns everything. Lines that do not parse are skipped.
func ReadJSONL(path string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
