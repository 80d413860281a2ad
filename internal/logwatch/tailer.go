package logwatch

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// maxReadChunk bounds how many bytes one ReadNew call will consume. A freshly
// rotated multi-hundred-MB log is then drained over several polls instead of
// one giant allocation.
const maxReadChunk = 4 << 20

// Tailer incrementally reads an append-only text file.
//
// It holds no open file descriptor between polls: each ReadNew stats and
// reopens the source, so the file may appear, disappear, or be replaced at
// any point without wedging the tailer. Not safe for concurrent use; the
// session watcher owns it from a single goroutine.
type Tailer struct {
	path   string
	offset int64

	// partial holds an unterminated trailing line until its newline arrives.
	partial strings.Builder
}

// Open creates a tailer for path. It fails when the file does not exist or is
// not readable right now; the caller treats that as "source unavailable".
func Open(path string) (*Tailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log source: %w", err)
	}
	_ = f.Close()
	return &Tailer{path: path}, nil
}

// Path returns the tailed file path.
func (t *Tailer) Path() string { return t.path }

// Offset returns the current byte offset (diagnostics only).
func (t *Tailer) Offset() int64 { return t.offset }

// SeekToEnd positions past all existing content without emitting it.
func (t *Tailer) SeekToEnd() error {
	fi, err := os.Stat(t.path)
	if err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	t.offset = fi.Size()
	t.partial.Reset()
	return nil
}

// ReadNew returns the complete lines appended since the last call.
//
// A missing source yields (nil, nil): the file may not exist yet, or may be
// mid-rotation; the next poll will try again. A shrunken source (truncation
// or replacement) resets the offset to 0 so the new content is read from the
// start.
func (t *Tailer) ReadNew() ([]string, error) {
	fi, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	size := fi.Size()
	if size < t.offset {
		// Truncated or replaced: start over.
		t.offset = 0
		t.partial.Reset()
	}
	if size == t.offset {
		return nil, nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}

	want := size - t.offset
	if want > maxReadChunk {
		want = maxReadChunk
	}
	buf := make([]byte, want)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	t.offset += int64(n)

	return t.splitLines(string(buf[:n])), nil
}

// splitLines carries any unterminated tail over to the next call so callers
// only ever see whole lines.
func (t *Tailer) splitLines(chunk string) []string {
	data := t.partial.String() + chunk
	t.partial.Reset()

	var lines []string
	for {
		line, rest, ok := strings.Cut(data, "\n")
		if !ok {
			t.partial.WriteString(data)
			break
		}
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
		data = rest
	}
	return lines
}
