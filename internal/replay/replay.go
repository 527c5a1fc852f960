// Package replay is the core of the harness: a fixed pool of workers,
// a precision dispatcher that releases each operation at its recorded
// time offset, and the bookkeeping needed to reconstruct a chronological
// log of what actually happened.
package replay

import (
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/TritonDataCenter/toshstomp/internal/console"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
)

// DefaultWorkers is the default pool size, chosen to exceed the peak
// concurrency of typical device traces.
const DefaultWorkers = 128

// Target is the I/O surface a replay executes against. Both methods
// return the transfer count so short transfers can be flagged.
type Target interface {
	Pread(offset, size int64) (int, error)
	Pwrite(offset, size int64) (int, error)
}

// worker is a reusable execution unit: an identity and a single-slot
// mailbox for the next operation to execute. The mailbox is buffered so
// the dispatcher's hand-off never blocks on worker wakeup latency.
type worker struct {
	id      int
	mailbox chan *trace.Operation
}

// Replay holds all state shared between the dispatcher and the workers.
// One mutex guards the idle pool, the outstanding-operation counters and
// the two event lists; it is never held across an I/O call.
type Replay struct {
	target    Target
	blockSize int64

	mu        sync.Mutex
	idle      []*worker          // stack of workers awaiting an operation
	readers   int                // reads currently executing
	writers   int                // writes currently executing
	started   []*trace.Operation // appended at dispatch, ordered by start time
	completed []*trace.Operation // appended at completion, ordered by completion time

	anchor  time.Time      // real-time zero of the replay
	pending sync.WaitGroup // outstanding dispatched operations
}

// New creates a replay against t and starts nworkers workers. Workers
// are started here, well before ingestion finishes, so every one of
// them is parked on its mailbox by the time dispatch begins.
func New(t Target, nworkers, blockSize int) *Replay {
	if nworkers <= 0 {
		nworkers = DefaultWorkers
	}
	if blockSize <= 0 {
		blockSize = trace.DefaultBlockSize
	}

	r := &Replay{
		target:    t,
		blockSize: int64(blockSize),
		idle:      make([]*worker, 0, nworkers),
	}

	for i := 0; i < nworkers; i++ {
		w := &worker{
			id:      i,
			mailbox: make(chan *trace.Operation, 1),
		}
		go r.runWorker(w)
	}

	// wait for every worker to park before handing the pool out: an
	// operation scheduled at offset zero must not find a half-started
	// pool and report a spurious exhaustion
	for {
		r.mu.Lock()
		ready := len(r.idle) == nworkers
		r.mu.Unlock()
		if ready {
			break
		}
		runtime.Gosched()
	}

	return r
}

// runWorker is the worker loop: park on the idle stack, wait for an
// assignment, execute it, record completion, repeat. Workers live for
// the process lifetime; there is no teardown in normal operation.
func (r *Replay) runWorker(w *worker) {
	for {
		r.mu.Lock()
		r.idle = append(r.idle, w)
		r.mu.Unlock()

		op := <-w.mailbox

		r.mu.Lock()

		// snapshot the concurrency level as this operation found it,
		// then count ourselves in
		op.OutReads = r.readers
		op.OutWrites = r.writers

		if op.Read {
			r.readers++
		} else {
			r.writers++
		}

		op.Start = time.Now()
		r.started = append(r.started, op)

		// the lock must not be held across the I/O call
		r.mu.Unlock()

		op.Worker = w.id
		r.execute(op)

		r.mu.Lock()

		op.Done = time.Now()
		op.DoneReads = r.readers
		op.DoneWrites = r.writers

		r.completed = append(r.completed, op)

		if op.Read {
			r.readers--
		} else {
			r.writers--
		}

		r.mu.Unlock()

		r.pending.Done()
	}
}

// execute performs the actual I/O. Individual failures and short
// transfers are warnings, never fatal: the point of a replay is to
// observe device behavior, including misbehavior.
func (r *Replay) execute(op *trace.Operation) {
	var n int
	var err error

	if op.Read {
		n, err = r.target.Pread(op.Offset, op.Size)
	} else {
		n, err = r.target.Pwrite(op.Offset, op.Size)
	}

	if err != nil {
		console.Warnf("%v", err)
	} else if int64(n) != op.Size {
		if op.Read {
			console.Warnf("pread lba 0x%x reported %d bytes", op.Offset, n)
		} else {
			console.Warnf("pwrite lba 0x%x reported %d bytes", op.Offset, n)
		}
	}
}

// Run dispatches every operation in queue order at its scheduled offset
// from a real-time anchor, then waits for all workers to drain. The wait
// for each operation's release point is a deliberate spin: sleep-based
// waiting has platform-dependent granularity incompatible with
// sub-millisecond replay fidelity.
func (r *Replay) Run(ops []*trace.Operation) error {
	r.anchor = time.Now()
	r.pending.Add(len(ops))

	for _, op := range ops {
		release := r.anchor.Add(op.Sched)
		for time.Now().Before(release) {
		}

		r.mu.Lock()

		n := len(r.idle)
		if n == 0 {
			r.mu.Unlock()

			// every worker is busy: the configured pool was too small
			// for the trace's actual concurrency. Queueing the overflow
			// would delay dispatch and corrupt the replay's timing, so
			// the run aborts instead.
			return errors.Errorf("ran out of workers at time offset %d",
				op.Sched.Nanoseconds())
		}

		w := r.idle[n-1]
		r.idle = r.idle[:n-1]

		// drop the lock before signalling so the worker can take it
		// without stalling on the dispatcher
		r.mu.Unlock()
		w.mailbox <- op
	}

	r.pending.Wait()
	return nil
}
