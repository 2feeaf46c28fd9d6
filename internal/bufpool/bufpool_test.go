package bufpool

import "testing"

func TestGetSizeBucketsScaleWithPageSize(t *testing.T) {
	const pageSize = 4096
	p := New(pageSize)

	tests := []struct {
		name      string
		size      int
		expectCap int
	}{
		{"exact page size", pageSize, pageSize},
		{"just over one page", pageSize + 1, pageSize * 4},
		{"margin-extended page", pageSize * 3, pageSize * 4},
		{"largest bucket exact", pageSize * 256, pageSize * 256},
		{"over largest bucket, plain alloc", pageSize*256 + 1, pageSize*256 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := p.Get(tt.size)
			if len(buf) != tt.size {
				t.Errorf("Get(%d) len=%d, want %d", tt.size, len(buf), tt.size)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("Get(%d) cap=%d, want %d", tt.size, cap(buf), tt.expectCap)
			}
			p.Put(buf)
		})
	}
}

func TestDistinctPoolsHaveIndependentLadders(t *testing.T) {
	small := New(512)
	large := New(64 * 1024)

	if got := cap(small.Get(512)); got != 512 {
		t.Errorf("small pool Get(512) cap=%d, want 512", got)
	}
	if got := cap(large.Get(512)); got != 64*1024 {
		t.Errorf("large pool Get(512) cap=%d, want %d (first bucket is the configured page size)", got, 64*1024)
	}
}

func TestNewRejectsNonPositivePageSize(t *testing.T) {
	p := New(0)
	buf := p.Get(4096)
	if len(buf) != 4096 {
		t.Errorf("Get(4096) len=%d, want 4096", len(buf))
	}
	if cap(buf) != 4096 {
		t.Errorf("New(0) should fall back to a 4096-byte page size, got first-bucket cap %d", cap(buf))
	}
}

func TestPutNonStandardCapIsDropped(t *testing.T) {
	p := New(4096)
	buf := make([]byte, 100) // capacity doesn't match any bucket
	p.Put(buf)               // must not panic
}
