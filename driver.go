package bulkscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/go-forensics/bulkscan/internal/hashstate"
	"github.com/go-forensics/bulkscan/internal/image"
	"github.com/go-forensics/bulkscan/internal/logging"
	"github.com/go-forensics/bulkscan/internal/page"
	"github.com/go-forensics/bulkscan/internal/pos"
	"github.com/go-forensics/bulkscan/internal/progress"
	"github.com/go-forensics/bulkscan/internal/queue"
	"github.com/go-forensics/bulkscan/internal/report"
	"github.com/go-forensics/bulkscan/internal/sampling"
	"github.com/go-forensics/bulkscan/internal/scan"
)

// ScannerSet is the narrow slice of *scan.Set the driver depends on: it
// drives recursion through the same worker pool the leaf pages travel
// through (spec.md §4.8), so the pool's SubmitRecursive method is wired
// into it before Run's dispatch loop starts.
type ScannerSet interface {
	queue.Processor
	SetDiagnosticSink(scan.Sink)
	SetRecurseFunc(scan.RecurseFunc)
}

// Stats summarizes one Run invocation for the caller, independent of
// whatever the report sink already recorded.
type Stats struct {
	RunID          string
	PagesSubmitted uint64
	BytesSubmitted uint64
	HashDigest     []byte // nil unless the rolling hash survived the run
	DrainTimedOut  bool
}

// Driver owns the producer-side state of one Phase-1 run: the seen-page
// set, rolling hash, progress counters and allocator-retry policy
// (spec.md §3's "Ownership" paragraph). A Driver is single-use; build a
// new one per Run.
type Driver struct {
	cfg     Config
	metrics *Metrics
	logger  *logging.Logger
}

// NewDriver returns a Driver that will record into metrics (NewMetrics()
// if nil) and log through logger (logging.Default() if nil).
func NewDriver(cfg Config, metrics *Metrics, logger *logging.Logger) *Driver {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Driver{cfg: cfg, metrics: metrics, logger: logger}
}

// Run is the Phase-1 entry point (spec.md §4.1): it builds the worker
// pool, feeds it from the image iterator via the dispatch loop, waits
// for drain with Config.MaxWaitTime as the deadline, and finalizes the
// report. It returns a fatal *Error only when the configuration is
// invalid, the allocator-retry policy was exhausted, or the run's
// context was cancelled while a page was being submitted (spec.md
// §4.1, §7); every other failure is recorded per-page and the run
// completes.
func (d *Driver) Run(ctx context.Context, it image.Iterator, scanners ScannerSet, rep report.Sink) (Stats, error) {
	if err := d.cfg.Validate(); err != nil {
		return Stats{}, err
	}

	runID := uuid.NewString()
	d.metrics.StartTime.Store(time.Now().UnixNano())

	rep.Push("runtime", map[string]string{"debug": "1", "run_id": runID})
	defer rep.Pop()

	pool := queue.New(ctx, d.cfg.NumThreads, 2*d.cfg.NumThreads, scanners, NewMetricsObserver(d.metrics))
	scanners.SetRecurseFunc(d.guardedRecurse(pool, rep))
	scanners.SetDiagnosticSink(reportSink{rep: rep, cfg: d.cfg, logger: d.logger})

	dd := &dispatcher{
		cfg:     d.cfg,
		metrics: d.metrics,
		logger:  d.logger,
		rep:     rep,
		pool:    pool,
		seen:    make(map[uint64]struct{}),
		hash:    newHashState(d.cfg),
		prog:    progress.New(progressWriter{d.logger}, d.cfg.NotifyRate, d.cfg.Quiet, d.cfg.Sampling()),
	}

	runErr := dd.dispatchAll(it)

	d.metrics.Stop()
	drainErr := pool.Join(d.cfg.MaxWaitTime)
	timedOut := errors.Is(drainErr, queue.ErrDrainTimeout)
	if timedOut {
		d.logger.WithPhase("drain").Warn("drain deadline exceeded, finalizing anyway", "run_id", runID, "max_wait", d.cfg.MaxWaitTime)
	}

	stats := Stats{
		RunID:          runID,
		PagesSubmitted: d.metrics.PagesSubmitted.Load(),
		BytesSubmitted: d.metrics.BytesSubmitted.Load(),
		DrainTimedOut:  timedOut,
	}
	if digest, live := dd.hash.Digest(); live {
		stats.HashDigest = digest
		rep.Emit("source/hashdigest", fmt.Sprintf("%x", digest), map[string]string{"type": "SHA1"}, false)
	}

	snap := d.metrics.Snapshot()
	rep.Push("worker_wait", map[string]string{})
	rep.Emit("pages_submitted", fmt.Sprintf("%d", snap.PagesSubmitted), nil, false)
	rep.Emit("pages_recursed", fmt.Sprintf("%d", snap.PagesRecursed), nil, false)
	rep.Emit("bytes_submitted", fmt.Sprintf("%d", snap.BytesSubmitted), nil, false)
	rep.Emit("avg_queue_depth", fmt.Sprintf("%.2f", snap.AvgQueueDepth), nil, false)
	rep.Emit("max_queue_depth", fmt.Sprintf("%d", snap.MaxQueueDepth), nil, false)
	rep.Emit("avg_worker_wait_ns", fmt.Sprintf("%d", snap.AvgWorkerWaitNs), nil, false)
	rep.Pop()
	if err := rep.Flush(); err != nil {
		d.logger.Error("report flush failed", "err", err)
	}

	if runErr != nil {
		return stats, runErr
	}
	return stats, nil
}

// guardedRecurse wraps the pool's reentrant submission path with the
// pathological-nesting refusal spec.md §5 and §9c ask for: a hard depth
// cap on Position, plus a streak check that refuses a chain of derived
// pages whose content stops shrinking relative to its immediate parent
// (a decoder reinflating its own output rather than uncovering genuine
// substructure).
func (d *Driver) guardedRecurse(pool *queue.Pool, rep report.Sink) scan.RecurseFunc {
	return func(child *page.Buffer) error {
		if reason, refused := d.recursionRefused(child); refused {
			d.metrics.RecordScannerException()
			rep.Emit("debug:exception", "", map[string]string{
				"name":    "recursion_refused",
				"pos0":    child.Pos.String(),
				"message": reason,
			}, false)
			d.logger.WithPhase("recurse").WithPos(child.Pos.String()).Warn("recursion refused", "reason", reason)
			child.Release()
			return nil
		}
		d.metrics.RecordPageRecursed()
		return pool.SubmitRecursive(child)
	}
}

// nonShrinkingStreakLimit is how many consecutive generations of
// byte-identical, non-shrinking content trigger a recursion refusal.
const nonShrinkingStreakLimit = 3

func (d *Driver) recursionRefused(child *page.Buffer) (reason string, refused bool) {
	if d.cfg.MaxRecursionDepth > 0 && child.Pos.Depth() > d.cfg.MaxRecursionDepth {
		return fmt.Sprintf("depth %d exceeds max_recursion_depth %d", child.Pos.Depth(), d.cfg.MaxRecursionDepth), true
	}

	streak := 0
	cur := child
	for cur != nil && cur.Parent != nil {
		if cur.PageSize < cur.Parent.PageSize {
			break
		}
		if xxhash.Sum64(cur.Page()) != xxhash.Sum64(cur.Parent.Page()) {
			break
		}
		streak++
		cur = cur.Parent
	}
	if streak >= nonShrinkingStreakLimit {
		return fmt.Sprintf("content identical to ancestor across %d generations", streak), true
	}
	return "", false
}

// newHashState returns a live rolling-hash state when Config.EnableHash
// is set, or nil otherwise; hashstate.State's nil-receiver methods make
// the disabled case a plain no-op throughout the dispatch loop.
func newHashState(cfg Config) *hashstate.State {
	if !cfg.EnableHash {
		return nil
	}
	return hashstate.New()
}

// dispatcher holds the producer-only state for one Run: the seen-page
// set, rolling hash, progress counters, and references to the pool and
// report it feeds (spec.md §3's ownership note — "driver owns the
// iterator, sampling plan, seen-set, hash state, counters").
type dispatcher struct {
	cfg     Config
	metrics *Metrics
	logger  *logging.Logger
	rep     report.Sink
	pool    *queue.Pool

	seen map[uint64]struct{}
	hash *hashstate.State
	prog *progress.Reporter
}

// dispatchAll runs the sequential or sampling dispatch loop (spec.md
// §4.2) to completion, or returns a fatal *Error if the allocator-retry
// budget was exhausted.
func (d *dispatcher) dispatchAll(it image.Iterator) error {
	if d.cfg.Sampling() {
		return d.dispatchSampling(it)
	}
	return d.dispatchSequential(it)
}

func (d *dispatcher) dispatchSequential(it image.Iterator) error {
	if d.cfg.OffsetStart > 0 {
		if err := it.SeekRaw(d.cfg.OffsetStart); err != nil {
			return NewConfigError("dispatch", "seek_raw failed: "+err.Error())
		}
	}

	for {
		if d.cfg.OffsetEnd > 0 && it.RawOffset() >= d.cfg.OffsetEnd {
			return nil
		}

		rawOffset := it.RawOffset()
		fractionDone := it.FractionDone()

		buf, err := d.acquirePage(it)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if fatal, ok := err.(*Error); ok {
				return fatal
			}
			continue
		}
		if buf == nil {
			continue // gated or deduped candidate
		}

		if err := d.submit(buf, rawOffset, fractionDone); err != nil {
			return err
		}
	}
}

func (d *dispatcher) dispatchSampling(it image.Iterator) error {
	maxBlocks := it.MaxBlocks()
	passes := d.cfg.SamplingPasses
	if passes == 0 {
		passes = 1
	}

	seed := d.cfg.SamplingSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	for pass := 0; pass < passes; pass++ {
		// Rebuilt fresh from the same seed every pass (see
		// Config.SamplingSeed): the plan is identical across passes,
		// so after the first pass every candidate is already in the
		// seen-set and later passes are pure no-ops.
		rng := rand.New(rand.NewSource(seed))
		plan, err := sampling.Build(maxBlocks, d.cfg.SamplingFraction, rng)
		if err != nil {
			return NewConfigError("dispatch", err.Error())
		}

		for _, block := range plan.Blocks() {
			if err := it.SeekBlock(block); err != nil {
				d.logger.WithPhase("dispatch").Warn("seek_block failed", "block", block, "err", err)
				continue
			}

			rawOffset := it.RawOffset()

			buf, err := d.acquirePage(it)
			if err != nil {
				if errors.Is(err, io.EOF) {
					continue
				}
				if fatal, ok := err.(*Error); ok {
					return fatal
				}
				continue
			}
			if buf == nil {
				continue
			}

			if err := d.submit(buf, rawOffset, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// acquirePage applies the offset/page gates (§4.2 step 1), the
// seen-set dedup (step 2), and the allocator-retry policy (step 3,
// §4.4) to one candidate page. It returns (nil, nil) for a page that
// was gated or already seen — not an error, just nothing to submit.
func (d *dispatcher) acquirePage(it image.Iterator) (*page.Buffer, error) {
	if it.PageNumber() < d.cfg.PageStart || it.RawOffset() < d.cfg.OffsetStart {
		// Positioned before the gate: advance past it without
		// touching the seen-set (spec.md §4.2 step 1 is explicit that
		// gated candidates are skipped before dedup).
		return d.skipOne(it)
	}

	p := it.Pos0()
	key := p.Hash()
	if _, ok := d.seen[key]; ok {
		return d.skipOne(it)
	}
	d.seen[key] = struct{}{}

	return d.readWithRetry(it, p)
}

// skipOne advances the iterator past a gated or deduped candidate by
// reading (and discarding) it, so sequential iteration still makes
// progress. A read failure here is reported exactly as any other
// per-page failure; the loop is aborted only when the allocator-retry
// budget is exhausted.
func (d *dispatcher) skipOne(it image.Iterator) (*page.Buffer, error) {
	buf, err := it.ReadPage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		if errors.Is(err, image.ErrOutOfMemory) {
			// A gated page still goes through the retry policy so the
			// iterator moves past it; a page read on retry is discarded
			// like any other skipped candidate.
			retried, err := d.retryAfterOOM(it, it.Pos0())
			if retried != nil {
				retried.Release()
			}
			return nil, err
		}
		d.reportReadError(it.Pos0(), err)
		return nil, nil
	}
	buf.Release()
	return nil, nil
}

func (d *dispatcher) readWithRetry(it image.Iterator, p pos.Position) (*page.Buffer, error) {
	buf, err := it.ReadPage()
	if err == nil {
		return buf, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, err
	}
	if errors.Is(err, image.ErrOutOfMemory) {
		return d.retryAfterOOM(it, p)
	}
	d.reportReadError(p, err)
	return nil, nil
}

// retryAfterOOM implements the allocator-retry policy (spec.md §4.4):
// sleep, retry, up to max_bad_alloc_errors times, then a fatal error.
// The producer never attempts more than max_bad_alloc_errors+1 reads at
// a single position (testable property 7).
func (d *dispatcher) retryAfterOOM(it image.Iterator, p pos.Position) (*page.Buffer, error) {
	for retry := 1; ; retry++ {
		d.metrics.RecordAllocRetry()
		d.logger.WithPhase("allocator-retry").WithPos(p.String()).Error("bad_alloc", "retry_count", retry)
		d.rep.Emit("debug:exception", "", map[string]string{
			"name":        "bad_alloc",
			"pos0":        p.String(),
			"retry_count": fmt.Sprintf("%d", retry),
		}, false)

		if retry > d.cfg.MaxBadAllocErrors {
			return nil, NewAllocationError("dispatch", p.String(), image.ErrOutOfMemory)
		}

		sleep(d.cfg.RetrySeconds)

		buf, err := it.ReadPage()
		if err == nil {
			return buf, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		if !errors.Is(err, image.ErrOutOfMemory) {
			d.reportReadError(p, err)
			return nil, nil
		}
		// else: loop and retry again
	}
}

// sleep is a var so tests can shrink the allocator-retry backoff
// without touching Config. It backs onto unix.Nanosleep directly,
// the same syscall-level wait go-ublk's runner uses while polling for
// its character device to appear, rather than a duration a delivered
// signal's runtime handler could cut short.
var sleep = nanosleep

func nanosleep(d time.Duration) {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	for {
		var remain unix.Timespec
		if err := unix.Nanosleep(&ts, &remain); err != unix.EINTR {
			return
		}
		ts = remain
	}
}

func (d *dispatcher) reportReadError(p pos.Position, err error) {
	d.rep.Emit("debug:exception", "", map[string]string{
		"name":    "read_error",
		"pos0":    p.String(),
		"message": err.Error(),
	}, false)
	if d.cfg.ReportReadErrors {
		d.logger.WithPhase("dispatch").WithPos(p.String()).Error("page read failed", "err", err)
	}
}

// submit runs §4.2 steps 4-7 for one acquired leaf page: rolling hash
// update, byte accounting, pool submission, and progress notification.
// rawOffset is the page's raw image offset, captured by the caller
// before ReadPage advanced the iterator.
func (d *dispatcher) submit(buf *page.Buffer, rawOffset uint64, fractionDone float64) error {
	d.hash.Submit(rawOffset, buf.Page())
	d.metrics.RecordPageSubmitted(uint64(buf.PageSize))
	d.prog.Tick(buf.Pos.String(), fractionDone)

	if err := d.pool.Submit(buf); err != nil {
		return NewCancelledError("dispatch", err)
	}
	return nil
}

// reportSink adapts report.Sink into scan.Sink so scanner exceptions
// flow into the same XML report the driver writes its own
// debug:exception entries to.
type reportSink struct {
	rep    report.Sink
	cfg    Config
	logger *logging.Logger
}

func (s reportSink) Exception(tag, posText string, attrs map[string]string) {
	full := map[string]string{"pos0": posText}
	for k, v := range attrs {
		full[k] = v
	}
	s.rep.Emit(tag, "", full, false)
	if s.cfg.ReportReadErrors {
		s.logger.WithPhase("scan").WithPos(posText).Error("scanner exception", "name", attrs["name"], "message", attrs["message"])
	}
}

// progressWriter adapts *logging.Logger into the io.Writer progress.New
// wants, so progress lines flow through the same leveled logger as
// everything else instead of going straight to stdout.
type progressWriter struct {
	logger *logging.Logger
}

func (w progressWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}
