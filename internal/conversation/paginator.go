package conversation

import "sync"

// Paginator owns the offset cursor and has-more flag for one paginated
// resource. Loads are single-flight: TryBegin refuses while a load is in
// flight, so rapid scroll triggers collapse into one fetch.
type Paginator struct {
	mu       sync.Mutex
	pageSize int
	offset   int
	hasMore  bool
	inFlight bool
}

// NewPaginator creates a paginator with the given page size.
func NewPaginator(pageSize int) *Paginator {
	return &Paginator{pageSize: pageSize, hasMore: true}
}

// PageSize returns the configured page size.
func (p *Paginator) PageSize() int { return p.pageSize }

// TryBeginFirst starts a first-page load, resetting the cursor. Returns
// false if a load is already in flight.
func (p *Paginator) TryBeginFirst() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return false
	}
	p.offset = 0
	p.inFlight = true
	return true
}

// TryBeginMore starts a follow-up load at the current offset. Returns the
// offset and false when exhausted or a load is already in flight.
func (p *Paginator) TryBeginMore() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight || !p.hasMore {
		return 0, false
	}
	p.inFlight = true
	return p.offset, true
}

// Complete records a successful load of count results and advances the
// cursor. hasMore stays set while full pages keep coming back.
func (p *Paginator) Complete(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	p.hasMore = count == p.pageSize
	p.offset += p.pageSize
}

// Abort releases the in-flight guard without advancing the cursor, leaving
// prior state untouched so the load can be retried.
func (p *Paginator) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
}

// HasMore reports whether another page is expected.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// InFlight reports whether a load is currently running.
func (p *Paginator) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}
