package replay

import (
	"fmt"
	"io"
)

// Report merges the started and completed event lists into one
// chronological log on w. Both lists are tautologically sorted: each is
// only ever appended to under the lock at the moment its event occurs.
// The merge walks both with a cursor and emits whichever head event
// happened first; a tie goes to the start event, which is a documented
// arbitrary choice, not a semantic one.
//
// Report must only be called after Run has returned; it takes no locks.
func (r *Replay) Report(w io.Writer) {
	si, ci := 0, 0

	// every start precedes its own completion, so the started list is
	// always exhausted by the time the completed list is
	for ci < len(r.completed) {
		if si < len(r.started) && !r.started[si].Start.After(r.completed[ci].Done) {
			op := r.started[si]

			fmt.Fprintf(w, "%d -> type=%c blkno=%d size=%d outr=%d outw=%d schedlat=%d\n",
				op.Start.Sub(r.anchor).Nanoseconds(),
				op.TypeChar(),
				op.Offset/r.blockSize,
				op.Size,
				op.OutReads, op.OutWrites,
				(op.Start.Sub(r.anchor) - op.Sched).Nanoseconds())

			si++
		} else {
			op := r.completed[ci]

			fmt.Fprintf(w, "%d <- type=%c blkno=%d size=%d outr=%d outw=%d latency=%d worker=%d\n",
				op.Done.Sub(r.anchor).Nanoseconds(),
				op.TypeChar(),
				op.Offset/r.blockSize,
				op.Size,
				op.DoneReads, op.DoneWrites,
				op.Done.Sub(op.Start).Nanoseconds(),
				op.Worker)

			ci++
		}
	}
}
