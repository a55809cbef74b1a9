package transfer

import (
	"io"
	"sync"
)

// progressReporter turns byte counts into monotonic integer percentages.
// After stop returns, the callback is never invoked again.
type progressReporter struct {
	mu      sync.Mutex
	total   int64
	sent    int64
	last    int
	stopped bool
	fn      ProgressFunc
}

func newProgressReporter(total int64, fn ProgressFunc) *progressReporter {
	return &progressReporter{total: total, last: -1, fn: fn}
}

func (p *progressReporter) add(n int) {
	if n <= 0 || p.total <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.fn == nil {
		return
	}

	p.sent += int64(n)
	if p.sent > p.total {
		p.sent = p.total
	}

	pct := int(p.sent * 100 / p.total)
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}

func (p *progressReporter) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// progressReader counts bytes as the transport pulls the request body.
type progressReader struct {
	r   io.Reader
	rep *progressReporter
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	pr.rep.add(n)
	return n, err
}
