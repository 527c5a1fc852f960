// Package target wraps the device or file a replay runs against:
// validation at open time, positioned reads and writes, and the shared
// write pattern buffer. After setup the descriptor, size and pattern
// are read-only and safe to share across workers without locking.
package target

import (
	"fortio.org/safecast"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/TritonDataCenter/toshstomp/internal/console"
)

// minimum size of the write pattern buffer (128 KiB)
const minPatternSize = 1 << 17

// Target is an open replay target.
type Target struct {
	fd      int
	path    string
	size    int64
	pattern []byte
}

// Open opens and validates a replay target. A character device is the
// expected case; a regular file draws a warning but works; a buffered
// block device is refused because its cache would defeat the point of
// a timing-faithful replay.
func Open(path string) (*Target, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open \"%s\"", path)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "fstat \"%s\"", path)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		console.Warnf("replaying I/O on a regular file")
	case unix.S_IFCHR:
		// raw device, the expected target
	case unix.S_IFBLK:
		unix.Close(fd)
		return nil, errors.New("refusing to operate on (buffered) block device")
	default:
		unix.Close(fd)
		return nil, errors.New("unsupported file type")
	}

	t := &Target{
		fd:   fd,
		path: path,
		size: st.Size,
	}
	t.growPattern(minPatternSize)

	return t, nil
}

// Size returns the target size in bytes.
func (t *Target) Size() int64 {
	return t.size
}

// EnsurePattern grows the write pattern buffer so that a single write of
// up to n bytes never runs past it.
func (t *Target) EnsurePattern(n int64) error {
	if n <= int64(len(t.pattern)) {
		return nil
	}
	size, err := safecast.Conv[int](n)
	if err != nil {
		return errors.Wrap(err, "pattern buffer size")
	}
	t.growPattern(size)
	return nil
}

// growPattern (re)fills the pattern buffer with the repeating
// 'A'..'Y' byte cycle.
func (t *Target) growPattern(n int) {
	buf := make([]byte, n)
	c := byte('A')
	for i := range buf {
		buf[i] = c
		if c++; c == 'Z' {
			c = 'A'
		}
	}
	t.pattern = buf
}

// Pread issues a positioned read of size bytes at offset into a scratch
// buffer whose content is discarded. It returns the transfer count so
// the caller can flag short reads.
func (t *Target) Pread(offset, size int64) (int, error) {
	n, err := safecast.Conv[int](size)
	if err != nil {
		return 0, errors.Wrap(err, "read size")
	}

	buf := make([]byte, n)
	nread, err := unix.Pread(t.fd, buf, offset)
	if err != nil {
		return 0, errors.Wrapf(err, "pread lba 0x%x", offset)
	}

	return nread, nil
}

// Pwrite issues a positioned write of size bytes at offset from the
// shared pattern buffer.
func (t *Target) Pwrite(offset, size int64) (int, error) {
	n, err := safecast.Conv[int](size)
	if err != nil {
		return 0, errors.Wrap(err, "write size")
	}
	if n > len(t.pattern) {
		return 0, errors.Errorf("pwrite lba 0x%x: size %d exceeds pattern buffer", offset, size)
	}

	nwritten, err := unix.Pwrite(t.fd, t.pattern[:n], offset)
	if err != nil {
		return 0, errors.Wrapf(err, "pwrite lba 0x%x", offset)
	}

	return nwritten, nil
}

// Close releases the target descriptor. Replay runs never tear the
// target down mid-flight; this exists for tests and orderly exits.
func (t *Target) Close() error {
	return unix.Close(t.fd)
}
