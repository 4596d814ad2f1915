// Package timing provides request-scoped timing diagnostics.
// A Timer records named marks and computes inter-mark durations so the
// engine can report where a request spent its time.
package timing

import (
	"sync"
	"time"
)

// Mark is a single named point in time recorded by a Timer.
type Mark struct {
	Name string
	At   time.Time
}

// Timer records named marks for a single request. Safe for concurrent use,
// though a request normally marks from one goroutine.
type Timer struct {
	mu    sync.Mutex
	start time.Time
	marks []Mark
	now   func() time.Time // overridable for tests
}

// New creates a Timer whose zero mark is the current time.
func New() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	return &Timer{
		start: now(),
		now:   now,
	}
}

// Mark records a named mark at the current time.
func (t *Timer) Mark(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks = append(t.marks, Mark{Name: name, At: t.now()})
}

// Since returns the duration between the named mark and the mark recorded
// after it, or the elapsed time since the mark if it is the last one.
// Returns 0 for unknown marks.
func (t *Timer) Since(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.marks {
		if m.Name != name {
			continue
		}
		if i+1 < len(t.marks) {
			return t.marks[i+1].At.Sub(m.At)
		}
		return t.now().Sub(m.At)
	}
	return 0
}

// Total returns the elapsed time since the timer was created.
func (t *Timer) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.start)
}

// Durations returns the duration of each stage: from the timer start to the
// first mark, then between consecutive marks, keyed by the mark that opened
// the stage. The final mark's stage runs to the current time.
func (t *Timer) Durations() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]time.Duration, len(t.marks))
	for i, m := range t.marks {
		end := t.now()
		if i+1 < len(t.marks) {
			end = t.marks[i+1].At
		}
		out[m.Name] = end.Sub(m.At)
	}
	return out
}

// Milliseconds returns stage durations in whole milliseconds, the shape
// reported in response diagnostics.
func (t *Timer) Milliseconds() map[string]int64 {
	durations := t.Durations()
	out := make(map[string]int64, len(durations))
	for name, d := range durations {
		out[name] = d.Milliseconds()
	}
	return out
}
