package download

import "sync"

// AggregateProgress is the job-level percentage for a multi-file job:
// (completed + fraction) / total * 100, floored and clamped to [0,100].
// fraction is the current file's progress in [0,1].
func AggregateProgress(completed, total int, fraction float64) int {
	if total <= 0 {
		return 0
	}
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	p := int((float64(completed) + fraction) / float64(total) * 100)
	return min(max(p, 0), 100)
}

// Aggregator tracks per-file progress of a job and reports the weighted
// aggregate. Reported values never decrease.
type Aggregator struct {
	mu        sync.Mutex
	total     int
	completed int
	fraction  float64
	last      int
	onChange  func(percent int)
}

// NewAggregator returns an Aggregator for total files. onChange, if set, is
// called with each new (strictly greater) percentage.
func NewAggregator(total int, onChange func(percent int)) *Aggregator {
	return &Aggregator{total: total, onChange: onChange}
}

// FileProgress records bytes written for the file in flight.
func (a *Aggregator) FileProgress(written, expected int64) {
	a.mu.Lock()
	if expected > 0 {
		a.fraction = float64(written) / float64(expected)
	}
	p, changed := a.update()
	a.mu.Unlock()
	a.notify(p, changed)
}

// FileDone advances past the current file, whether it succeeded or was
// skipped.
func (a *Aggregator) FileDone() {
	a.mu.Lock()
	if a.completed < a.total {
		a.completed++
	}
	a.fraction = 0
	p, changed := a.update()
	a.mu.Unlock()
	a.notify(p, changed)
}

// Percent returns the highest aggregate reported so far.
func (a *Aggregator) Percent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Completed returns the number of files passed.
func (a *Aggregator) Completed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed
}

func (a *Aggregator) update() (int, bool) {
	p := AggregateProgress(a.completed, a.total, a.fraction)
	if p <= a.last {
		return a.last, false
	}
	a.last = p
	return p, true
}

func (a *Aggregator) notify(p int, changed bool) {
	if changed && a.onChange != nil {
		a.onChange(p)
	}
}
