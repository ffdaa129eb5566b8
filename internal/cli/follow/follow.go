// Package follow reads the tail of line-oriented files and follows them
// as they grow, surviving rotation by the writer.
package follow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const maxLine = 1024 * 1024

// Tail returns the last n lines of the file that pass keep. A nil keep
// accepts every line; n <= 0 returns all of them.
func Tail(path string, n int, keep func(string) bool) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Text()
		if keep != nil && !keep(line) {
			continue
		}
		lines = append(lines, line)
		if n > 0 && len(lines) > 2*n {
			lines = append(lines[:0], lines[len(lines)-n:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow calls fn for every complete line appended to path after the call
// starts, until ctx is done. When the file is replaced (rotation) the new
// file is read from its beginning.
func Follow(ctx context.Context, path string, fn func(line string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so rotation (rename + create) is observed.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path, fn: fn}
	if err := t.open(io.SeekEnd); err != nil {
		return err
	}
	defer t.close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				t.drain()
				t.close()
				if err := t.open(io.SeekStart); err != nil {
					return err
				}
				t.drain()
			case event.Has(fsnotify.Write):
				t.drain()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

type tailer struct {
	path    string
	fn      func(string)
	file    *os.File
	reader  *bufio.Reader
	partial []byte
}

func (t *tailer) open(whence int) error {
	file, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", t.path, err)
	}
	if _, err := file.Seek(0, whence); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to seek %s: %w", t.path, err)
	}
	t.file = file
	t.reader = bufio.NewReader(file)
	t.partial = t.partial[:0]
	return nil
}

func (t *tailer) close() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}

// drain emits every complete line available. A trailing fragment is kept
// until its newline arrives.
func (t *tailer) drain() {
	if t.reader == nil {
		return
	}
	for {
		chunk, err := t.reader.ReadBytes('\n')
		t.partial = append(t.partial, chunk...)
		if err != nil {
			return
		}
		line := t.partial[:len(t.partial)-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		t.fn(string(line))
		t.partial = t.partial[:0]
	}
}
