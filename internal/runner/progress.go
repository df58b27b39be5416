package runner

import "sync/atomic"

// progress reports when a finished client crosses the next step of total.
type progress struct {
	total    int
	interval int
	finished atomic.Int64
}

func newProgress(total, steps int) *progress {
	interval := total / steps
	if interval < 1 {
		interval = 1
	}
	return &progress{total: total, interval: interval}
}

// done marks one client finished. ok is true on every interval boundary,
// with the completed percentage.
func (p *progress) done() (percent int, ok bool) {
	n := int(p.finished.Add(1))
	if n%p.interval != 0 && n != p.total {
		return 0, false
	}
	return n * 100 / p.total, true
}
