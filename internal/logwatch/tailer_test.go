package logwatch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestOpenMissingFileFails(t *testing.T) {
	t.Parallel()
	if _, err := Open(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadNewAppendOnly(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "output_log_test.txt")
	writeFile(t, path, "old line\n")

	tl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.SeekToEnd(); err != nil {
		t.Fatal(err)
	}

	// Nothing new yet.
	lines, err := tl.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Fatalf("lines = %v, want none", lines)
	}

	appendFile(t, path, "first\nsecond\n")
	lines, err = tl.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "first" || lines[1] != "second" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestReadNewCarriesPartialLine(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.txt")
	writeFile(t, path, "")

	tl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	appendFile(t, path, "incomple")
	lines, err := tl.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Fatalf("lines = %v, want none for unterminated tail", lines)
	}

	appendFile(t, path, "te line\nnext\n")
	lines, err = tl.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "incomplete line" || lines[1] != "next" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestReadNewTruncationResets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.txt")
	writeFile(t, path, "aaaa\nbbbb\ncccc\n")

	tl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.SeekToEnd(); err != nil {
		t.Fatal(err)
	}

	// Replace with a shorter file: offset must reset and the new content read
	// from the start.
	writeFile(t, path, "fresh\n")
	lines, err := tl.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "fresh" {
		t.Fatalf("lines = %v, want [fresh]", lines)
	}
}

func TestReadNewMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.txt")
	writeFile(t, path, "x\n")

	tl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	lines, err := tl.ReadNew()
	if err != nil {
		t.Fatalf("ReadNew after remove: %v", err)
	}
	if lines != nil {
		t.Fatalf("lines = %v, want nil", lines)
	}

	// Source reappears; tailing resumes.
	writeFile(t, path, "back\n")
	lines, err = tl.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "back" {
		t.Fatalf("lines = %v, want [back]", lines)
	}
}

func TestSplitLinesStripsCR(t *testing.T) {
	t.Parallel()
	tl := &Tailer{}
	lines := tl.splitLines("a\r\nb\r\n")
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("lines = %v", lines)
	}
}
