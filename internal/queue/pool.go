// Package queue implements the Phase-1 worker pool (spec.md §4.7): a
// fixed-size pool of goroutines consuming work units from a bounded,
// thread-safe queue, with a reentrant-drain discipline so a scanner
// recursively submitting a derived page never deadlocks the pool it is
// running inside of.
//
// The loop shape (dequeue, execute, release, repeat) and the observer
// wiring are adapted from go-ublk's internal/queue.Runner ioLoop; the
// bounded channel replaces io_uring as the queueing mechanism, and
// go-ublk's size-bucketed BufferPool moved out to internal/bufpool,
// where the file image iterator uses it; this package does not.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-forensics/bulkscan/internal/page"
)

// Observer receives pool-lifecycle metrics. Implementations must be
// thread-safe: every worker goroutine calls into the same Observer.
type Observer interface {
	ObserveWorkerWait(latencyNs uint64)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWorkerWait(uint64) {}
func (NoOpObserver) ObserveQueueDepth(uint32) {}

// Processor executes one work unit's page. It is the scanner set's
// Process method; Pool depends on this narrow interface instead of the
// scan package directly so internal/scan and internal/queue have no
// import relationship in either direction.
type Processor interface {
	Process(buf *page.Buffer)
}

// ErrDrainTimeout is returned by Join when the deadline elapses before
// every submitted unit finished executing. Finalization still proceeds
// when this is returned (spec.md §4.1, §7).
var ErrDrainTimeout = errors.New("queue: drain deadline exceeded")

// Pool is the fixed-size worker pool. Construct with New, feed it with
// Submit, and wait for completion with Join.
type Pool struct {
	workItems chan *page.Buffer
	processor Processor
	observer  Observer

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	workerWG sync.WaitGroup
}

// New constructs a pool of n workers with a bounded queue of capacity
// capacity (recommended 2n; the only hard requirement is capacity >= n
// so every worker can have a unit in flight without the queue itself
// stalling startup). processor.Process(buf) runs once per submitted
// page, synchronously invoking every scanner in the set.
func New(ctx context.Context, n, capacity int, processor Processor, observer Observer) *Pool {
	if capacity < n {
		capacity = n
	}
	if observer == nil {
		observer = NoOpObserver{}
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		workItems: make(chan *page.Buffer, capacity),
		processor: processor,
		observer:  observer,
		ctx:       pctx,
		cancel:    cancel,
	}

	p.workerWG.Add(n)
	for i := 0; i < n; i++ {
		go p.workerLoop()
	}
	return p
}

func (p *Pool) workerLoop() {
	defer p.workerWG.Done()

	for {
		waitStart := time.Now()
		select {
		case <-p.ctx.Done():
			return
		case buf, ok := <-p.workItems:
			if !ok {
				return
			}
			p.observer.ObserveWorkerWait(uint64(time.Since(waitStart).Nanoseconds()))
			p.observer.ObserveQueueDepth(uint32(len(p.workItems)))
			p.execute(buf)
		}
	}
}

func (p *Pool) execute(buf *page.Buffer) {
	defer p.wg.Done()
	defer buf.Release()
	p.processor.Process(buf)
}

// Submit is the producer's blocking enqueue: it returns once buf is
// queued. A full queue blocks the caller rather than dropping the
// unit; this is the intended flow-control path (spec.md §4.2 step 6),
// not an error.
func (p *Pool) Submit(buf *page.Buffer) error {
	p.wg.Add(1)
	select {
	case p.workItems <- buf:
		return nil
	case <-p.ctx.Done():
		p.wg.Done()
		return p.ctx.Err()
	}
}

// SubmitRecursive is the reentrant submission path a scanner's call to
// Recurse is wired to. If the queue is saturated, the child unit runs
// inline on the submitting worker goroutine instead of blocking, which
// is what prevents a worker that is itself draining a full queue from
// deadlocking against its own recursive submission (spec.md §4.7).
func (p *Pool) SubmitRecursive(buf *page.Buffer) error {
	p.wg.Add(1)
	select {
	case p.workItems <- buf:
		return nil
	default:
		p.execute(buf)
		return nil
	}
}

// Join blocks until every submitted unit has finished executing, or
// until deadline elapses, whichever comes first (deadline <= 0 means
// wait forever). It is idempotent: a second call waits on the same
// counters and returns the same way. Join cancels the pool's workers
// when it returns, so nothing may be submitted after it. In-flight
// workers past the deadline are
// not forcibly killed, matching spec.md §5's "no per-unit cancellation".
func (p *Pool) Join(deadline time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if deadline <= 0 {
		<-done
		p.cancel()
		p.workerWG.Wait()
		return nil
	}

	select {
	case <-done:
		p.cancel()
		p.workerWG.Wait()
		return nil
	case <-time.After(deadline):
		// Cancel so any worker that is merely idle (blocked on dequeue,
		// not mid-execute) exits promptly; workers still inside
		// Process() are left running rather than killed, per spec.md
		// §5. Do not wait on workerWG here: that would block this call
		// on exactly the slow worker the timeout exists to not wait for.
		p.cancel()
		return ErrDrainTimeout
	}
}
