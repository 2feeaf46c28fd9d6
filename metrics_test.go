package bulkscan

import "testing"

func TestRecordPageSubmitted(t *testing.T) {
	m := NewMetrics()
	m.RecordPageSubmitted(4096)
	m.RecordPageSubmitted(4096)

	snap := m.Snapshot()
	if snap.PagesSubmitted != 2 {
		t.Errorf("PagesSubmitted = %d, want 2", snap.PagesSubmitted)
	}
	if snap.BytesSubmitted != 8192 {
		t.Errorf("BytesSubmitted = %d, want 8192", snap.BytesSubmitted)
	}
}

func TestRecordQueueDepthTracksMax(t *testing.T) {
	m := NewMetrics()
	m.RecordQueueDepth(3)
	m.RecordQueueDepth(7)
	m.RecordQueueDepth(2)

	snap := m.Snapshot()
	if snap.MaxQueueDepth != 7 {
		t.Errorf("MaxQueueDepth = %d, want 7", snap.MaxQueueDepth)
	}
	if snap.AvgQueueDepth != 4 {
		t.Errorf("AvgQueueDepth = %v, want 4", snap.AvgQueueDepth)
	}
}

func TestMetricsObserverDelegates(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveWorkerWait(500)
	obs.ObserveQueueDepth(9)

	snap := m.Snapshot()
	if snap.AvgWorkerWaitNs != 500 {
		t.Errorf("AvgWorkerWaitNs = %d, want 500", snap.AvgWorkerWaitNs)
	}
	if snap.MaxQueueDepth != 9 {
		t.Errorf("MaxQueueDepth = %d, want 9", snap.MaxQueueDepth)
	}
}
