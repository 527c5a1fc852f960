// Package trace defines the replay operation model and ingests
// line-oriented I/O traces into an ordered operation queue.
package trace

import "time"

// DefaultBlockSize is the conventional device block size used to convert
// trace block numbers into byte offsets.
const DefaultBlockSize = 512

// Operation is one trace entry to replay. Offset, Size and Sched are
// immutable once parsed; the remaining fields are written exactly once
// by the worker that executes the operation and read only by the report
// phase after the replay has drained.
type Operation struct {
	// parsed from the trace
	Read   bool          // true for a read, false for a write
	Offset int64         // byte offset on the target
	Size   int64         // transfer size in bytes
	Sched  time.Duration // scheduled dispatch time relative to replay start

	// filled in during execution
	Start      time.Time // actual dispatch time (monotonic)
	Done       time.Time // completion time (monotonic)
	OutReads   int       // outstanding reads when dispatched (not counting this op)
	OutWrites  int       // outstanding writes when dispatched
	DoneReads  int       // outstanding reads at completion (counting this op if a read)
	DoneWrites int       // outstanding writes at completion
	Worker     int       // id of the executing worker
}

// TypeChar returns the single-character direction tag used in both the
// trace format and the report output.
func (op *Operation) TypeChar() byte {
	if op.Read {
		return 'R'
	}
	return 'W'
}

// Log is the operation queue produced by ingestion, in trace-file order.
// The queue is immutable after ingestion; the dispatcher owns iteration.
type Log struct {
	Ops    []*Operation
	Reads  int
	Writes int

	// MaxSize is the largest transfer size seen, used to size the
	// write pattern buffer before dispatch begins.
	MaxSize int64
}
