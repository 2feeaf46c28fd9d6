package bulkscan

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the worker-wait latency histogram buckets in
// nanoseconds, logarithmically spaced from 1us to 10s, adapted
// unchanged from go-ublk's I/O latency histogram (metrics.go) since
// worker dequeue wait and block I/O latency live on the same scale.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks the run's execution statistics: pages submitted and
// bytes covered, recursion fan-out, queue depth, and worker-wait
// latency.
type Metrics struct {
	PagesSubmitted    atomic.Uint64 // leaf pages submitted by the dispatch loop
	PagesRecursed     atomic.Uint64 // derived pages submitted via Recurse
	BytesSubmitted    atomic.Uint64 // sum of pagesize over submitted leaf pages
	ScannerExceptions atomic.Uint64 // derived pages refused by the driver's recursion guard
	AllocRetries      atomic.Uint64 // allocator-retry attempts (spec.md §4.4)

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	WorkerWaitNsTotal atomic.Uint64
	WorkerWaitCount   atomic.Uint64
	WorkerWaitBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new Metrics instance, starting its uptime clock.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordPageSubmitted records a leaf page entering the pool.
func (m *Metrics) RecordPageSubmitted(bytes uint64) {
	m.PagesSubmitted.Add(1)
	m.BytesSubmitted.Add(bytes)
}

// RecordPageRecursed records a derived page entering the pool via Recurse.
func (m *Metrics) RecordPageRecursed() {
	m.PagesRecursed.Add(1)
}

// RecordScannerException records one derived page refused by the
// driver's recursion guard. Scanner failures captured by the scanner
// set go to its diagnostic sink and are not counted here.
func (m *Metrics) RecordScannerException() {
	m.ScannerExceptions.Add(1)
}

// RecordAllocRetry records one allocator-retry attempt.
func (m *Metrics) RecordAllocRetry() {
	m.AllocRetries.Add(1)
}

// RecordQueueDepth records an observed queue depth sample.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

// RecordWorkerWait records one worker's dequeue wait latency.
func (m *Metrics) RecordWorkerWait(latencyNs uint64) {
	m.WorkerWaitNsTotal.Add(latencyNs)
	m.WorkerWaitCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.WorkerWaitBuckets[i].Add(1)
		}
	}
}

// Stop marks the run as finished.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time view of Metrics, suitable for report
// output.
type Snapshot struct {
	PagesSubmitted    uint64
	PagesRecursed     uint64
	BytesSubmitted    uint64
	ScannerExceptions uint64
	AllocRetries      uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgWorkerWaitNs uint64
	UptimeNs        uint64
}

// Snapshot computes a Snapshot of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		PagesSubmitted:    m.PagesSubmitted.Load(),
		PagesRecursed:     m.PagesRecursed.Load(),
		BytesSubmitted:    m.BytesSubmitted.Load(),
		ScannerExceptions: m.ScannerExceptions.Load(),
		AllocRetries:      m.AllocRetries.Load(),
		MaxQueueDepth:     m.MaxQueueDepth.Load(),
	}

	if c := m.QueueDepthCount.Load(); c > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(c)
	}
	if c := m.WorkerWaitCount.Load(); c > 0 {
		snap.AvgWorkerWaitNs = m.WorkerWaitNsTotal.Load() / c
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	return snap
}

// Observer allows pluggable metrics collection for the worker pool; it
// mirrors go-ublk's Observer interface, repointed at scan throughput
// instead of block I/O.
type Observer interface {
	ObserveWorkerWait(latencyNs uint64)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWorkerWait(uint64) {}
func (NoOpObserver) ObserveQueueDepth(uint32) {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveWorkerWait(latencyNs uint64) {
	o.metrics.RecordWorkerWait(latencyNs)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
