package conversation

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPaginatorFirstPageFull(t *testing.T) {
	p := NewPaginator(20)
	if !p.TryBeginFirst() {
		t.Fatal("TryBeginFirst refused on fresh paginator")
	}
	p.Complete(20)

	if !p.HasMore() {
		t.Error("HasMore = false after full page")
	}
	offset, ok := p.TryBeginMore()
	if !ok || offset != 20 {
		t.Errorf("TryBeginMore = (%d, %v), want (20, true)", offset, ok)
	}
}

func TestPaginatorShortPageEndsHistory(t *testing.T) {
	p := NewPaginator(20)
	p.TryBeginFirst()
	p.Complete(20)
	offset, _ := p.TryBeginMore()
	if offset != 20 {
		t.Fatalf("offset = %d, want 20", offset)
	}
	p.Complete(5)

	if p.HasMore() {
		t.Error("HasMore = true after short page")
	}
	if _, ok := p.TryBeginMore(); ok {
		t.Error("TryBeginMore allowed after exhaustion")
	}
}

func TestPaginatorSingleFlight(t *testing.T) {
	p := NewPaginator(20)
	p.TryBeginFirst()
	p.Complete(20)

	if _, ok := p.TryBeginMore(); !ok {
		t.Fatal("first TryBeginMore refused")
	}
	if _, ok := p.TryBeginMore(); ok {
		t.Error("second TryBeginMore allowed while first is in flight")
	}
	p.Complete(20)
	if _, ok := p.TryBeginMore(); !ok {
		t.Error("TryBeginMore refused after completion")
	}
}

func TestPaginatorSingleFlightConcurrent(t *testing.T) {
	p := NewPaginator(20)
	p.TryBeginFirst()
	p.Complete(20)

	var started int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := p.TryBeginMore(); ok {
				atomic.AddInt32(&started, 1)
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Errorf("started = %d concurrent loads, want exactly 1", started)
	}
}

func TestPaginatorAbortLeavesCursor(t *testing.T) {
	p := NewPaginator(20)
	p.TryBeginFirst()
	p.Complete(20)

	offset, _ := p.TryBeginMore()
	p.Abort()

	again, ok := p.TryBeginMore()
	if !ok || again != offset {
		t.Errorf("after abort: (%d, %v), want retry at offset %d", again, ok, offset)
	}
	if !p.HasMore() {
		t.Error("abort must not flip hasMore")
	}
}
