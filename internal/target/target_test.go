package target

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// newTestTarget creates a zero-filled regular file of the given size and
// opens it as a replay target.
func newTestTarget(t *testing.T, size int64) *Target {
	t.Helper()

	path := filepath.Join(t.TempDir(), "target.dat")
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("creating test target: %v", err)
	}

	tgt, err := Open(path)
	if err != nil {
		t.Fatalf("opening test target: %v", err)
	}
	t.Cleanup(func() { tgt.Close() })

	return tgt
}

func TestOpenReportsSize(t *testing.T) {
	tgt := newTestTarget(t, 8192)
	if tgt.Size() != 8192 {
		t.Fatalf("size %d, want 8192", tgt.Size())
	}
}

func TestOpenMissingTarget(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("opening a missing target must fail")
	}
}

func TestOpenUnwritableTarget(t *testing.T) {
	// a directory cannot be opened read-write
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatalf("opening a directory must fail")
	}
}

func TestPatternContent(t *testing.T) {
	tgt := newTestTarget(t, 4096)

	if len(tgt.pattern) < minPatternSize {
		t.Fatalf("pattern buffer is %d bytes, want at least %d",
			len(tgt.pattern), minPatternSize)
	}
	if tgt.pattern[0] != 'A' || tgt.pattern[1] != 'B' {
		t.Fatalf("pattern does not start with the A..Y cycle")
	}
	if bytes.IndexByte(tgt.pattern, 'Z') != -1 {
		t.Fatalf("pattern cycle must wrap before 'Z'")
	}
	// the cycle restarts every 25 bytes
	if tgt.pattern[25] != 'A' {
		t.Fatalf("pattern byte 25 is %q, want 'A'", tgt.pattern[25])
	}
}

func TestEnsurePatternGrows(t *testing.T) {
	tgt := newTestTarget(t, 4096)

	if err := tgt.EnsurePattern(minPatternSize * 2); err != nil {
		t.Fatalf("growing pattern: %v", err)
	}
	if len(tgt.pattern) != minPatternSize*2 {
		t.Fatalf("pattern is %d bytes after growth, want %d",
			len(tgt.pattern), minPatternSize*2)
	}
	if tgt.pattern[len(tgt.pattern)-1] == 0 {
		t.Fatalf("grown pattern is not filled")
	}

	// shrinking never happens
	if err := tgt.EnsurePattern(16); err != nil {
		t.Fatalf("no-op ensure: %v", err)
	}
	if len(tgt.pattern) != minPatternSize*2 {
		t.Fatalf("pattern shrank to %d bytes", len(tgt.pattern))
	}
}

func TestPwriteThenPread(t *testing.T) {
	tgt := newTestTarget(t, 8192)

	n, err := tgt.Pwrite(512, 1024)
	if err != nil {
		t.Fatalf("pwrite: %v", err)
	}
	if n != 1024 {
		t.Fatalf("pwrite reported %d bytes, want 1024", n)
	}

	n, err = tgt.Pread(512, 1024)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if n != 1024 {
		t.Fatalf("pread reported %d bytes, want 1024", n)
	}

	// verify the pattern actually landed on the file
	data, err := os.ReadFile(tgt.path)
	if err != nil {
		t.Fatalf("reading back target: %v", err)
	}
	if !bytes.Equal(data[512:512+1024], tgt.pattern[:1024]) {
		t.Fatalf("written bytes do not match the pattern buffer")
	}
	if data[0] != 0 || data[2048] != 0 {
		t.Fatalf("write touched bytes outside its extent")
	}
}

func TestPreadShortAtEOF(t *testing.T) {
	tgt := newTestTarget(t, 1024)

	n, err := tgt.Pread(768, 512)
	if err != nil {
		t.Fatalf("pread past EOF must not error on a regular file: %v", err)
	}
	if n != 256 {
		t.Fatalf("pread reported %d bytes, want a 256-byte short read", n)
	}
}
