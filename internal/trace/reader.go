package trace

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/TritonDataCenter/toshstomp/internal/console"
)

// tokens identifying a trace record and its fields; a record line is any
// line containing tokIOStart, everything else is ignored
const (
	tokIOStart = " -> "
	tokRead    = " type=R "
	tokWrite   = " type=W "
	tokBlkno   = " blkno="
	tokSize    = " size="
)

// DefaultTimeCap bounds ingestion so a replay stays time-limited even
// against an arbitrarily long trace.
const DefaultTimeCap = 120 * time.Second

// Options controls trace ingestion.
type Options struct {
	// TargetSize is the size of the target device or file in bytes,
	// used for bounds checking.
	TargetSize int64

	// BlockSize converts trace block numbers into byte offsets.
	// Zero means DefaultBlockSize.
	BlockSize int64

	// Clamp corrects out-of-bounds operations instead of aborting.
	Clamp bool

	// TimeCap stops ingestion once an operation is scheduled past this
	// offset. Zero or negative disables the cap.
	TimeCap time.Duration
}

// Read ingests a replay trace from r and returns the operation queue.
// The stream may be zstd- or gzip-compressed; compression is detected
// from the leading magic bytes. Any parse error is fatal and cites the
// 1-based line number and the offending field.
func Read(r io.Reader, opts Options) (*Log, error) {
	bsize := opts.BlockSize
	if bsize <= 0 {
		bsize = DefaultBlockSize
	}

	plain, err := decompressed(r)
	if err != nil {
		return nil, err
	}

	log := &Log{}
	lineno := 0

	scanner := bufio.NewScanner(plain)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		lineno++

		if !strings.Contains(line, tokIOStart) {
			continue
		}

		op := &Operation{}

		if strings.Contains(line, tokRead) {
			op.Read = true
		} else if !strings.Contains(line, tokWrite) {
			return nil, errors.Errorf("line %d: could not determine I/O type", lineno)
		}

		// the time offset is the leading field of the record
		sched, err := leadingInt(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: time offset", lineno)
		}
		op.Sched = time.Duration(sched)

		blkno, err := readField(line, tokBlkno)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineno)
		}
		if blkno < 0 {
			return nil, errors.Errorf("line %d: invalid value for field 'blkno'", lineno)
		}
		op.Offset = blkno * bsize

		op.Size, err = readField(line, tokSize)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineno)
		}

		// a negative size would sail through the bounds check below and
		// only blow up once a worker tries to build a transfer buffer
		if op.Size < 0 {
			return nil, errors.Errorf("line %d: invalid value for field 'size'", lineno)
		}

		if op.Offset+op.Size > opts.TargetSize {
			if !opts.Clamp {
				return nil, errors.Errorf("line %d: offset %d exceeds size (%d)",
					lineno, op.Offset, opts.TargetSize)
			}

			clamp := (opts.TargetSize - op.Size) &^ (bsize - 1)
			if clamp < 0 {
				return nil, errors.Errorf("line %d: operation of size %d cannot fit target of size %d",
					lineno, op.Size, opts.TargetSize)
			}

			console.Warnf("line %d: offset %d exceeds %d; clamped to %d",
				lineno, op.Offset, opts.TargetSize, clamp)
			op.Offset = clamp
		}

		if op.Read {
			log.Reads++
		} else {
			log.Writes++
		}

		if op.Size > log.MaxSize {
			log.MaxSize = op.Size
		}

		log.Ops = append(log.Ops, op)

		// the op that crosses the cap is kept; everything after it
		// is dropped
		if opts.TimeCap > 0 && op.Sched > opts.TimeCap {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		// Scan fails before the offending line is counted
		return nil, errors.Wrapf(err, "line %d: reading replay log", lineno+1)
	}

	return log, nil
}

// leadingInt parses the integer at the start of a record line. Leading
// blanks are skipped, as strtoll does for the C capture tools, and the
// value must be terminated by a space.
func leadingInt(line string) (int64, error) {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}

	rest := line[i:]
	val, end, err := scanInt(rest)
	if err != nil {
		return 0, err
	}
	if end >= len(rest) || rest[end] != ' ' {
		return 0, errors.New("invalid value")
	}
	return val, nil
}

// readField extracts a labeled integer field from a record line. The
// value must end at a space or at the end of the line; arbitrary text
// around the field is tolerated.
func readField(line, label string) (int64, error) {
	name := fieldName(label)

	idx := strings.Index(line, label)
	if idx < 0 {
		return 0, errors.Errorf("missing required field '%s'", name)
	}

	rest := line[idx+len(label):]
	val, end, err := scanInt(rest)
	if err != nil {
		return 0, errors.Wrapf(err, "field '%s'", name)
	}
	if end < len(rest) && rest[end] != ' ' {
		return 0, errors.Errorf("invalid value for field '%s'", name)
	}

	return val, nil
}

// fieldName strips the token decoration from a field label for error
// messages: " blkno=" becomes "blkno".
func fieldName(label string) string {
	return strings.TrimSpace(strings.TrimSuffix(label, "="))
}

// scanInt parses a decimal integer at the start of s, returning the value
// and the index of the first byte past it.
func scanInt(s string) (int64, int, error) {
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, 0, errors.New("invalid value")
	}

	val, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// out of range for int64
		return 0, 0, errors.New("illegal value")
	}

	return val, end, nil
}

// magic numbers for supported trace compression formats
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decompressed wraps r with the matching decompressor when the stream
// carries a known compression magic, and returns it unchanged otherwise.
func decompressed(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading replay log")
	}

	switch {
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "zstd replay log")
		}
		return dec.IOReadCloser(), nil

	case bytes.HasPrefix(head, gzipMagic):
		dec, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "gzip replay log")
		}
		return dec, nil
	}

	return br, nil
}
