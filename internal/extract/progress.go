package extract

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Soft warnings surfaced through Progress.Warning.
const (
	WarningStalled = "stalled" // no progress for a while
	WarningSlow    = "slow"    // running for a long time
)

// Progress is one caller-visible update on a 0-100 scale.
type Progress struct {
	TaskID  string `json:"task_id"`
	Percent int    `json:"percent"`
	Warning string `json:"warning,omitempty"`
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Reporter is what a backend sees: progress as a fraction in [0,1], plus
// soft warnings.
type Reporter interface {
	Progress(fraction float64)
	Warn(warning string)
}

// Throttle coalesces backend progress into at most one update per interval.
// The first update and the final 100 always pass, values never go down, and
// backend fractions map to at most 99 until Complete. After Close no
// callback starts.
type Throttle struct {
	taskID   string
	interval time.Duration
	fn       ProgressFunc
	now      func() time.Time

	mu      sync.Mutex
	latest  int
	warning string
	sent    int
	lastAt  time.Time
	started bool

	closed atomic.Bool
}

// NewThrottle creates a throttle for one task. fn may be nil.
func NewThrottle(taskID string, interval time.Duration, fn ProgressFunc) *Throttle {
	return &Throttle{
		taskID:   taskID,
		interval: interval,
		fn:       fn,
		now:      time.Now,
		sent:     -1,
	}
}

// Percent maps a backend fraction to the caller scale.
func Percent(fraction float64) int {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return min(int(math.Round(fraction*90)), 99)
}

// Report records a backend fraction. It returns true when the visible
// percentage advanced, whether or not an update was emitted.
func (t *Throttle) Report(fraction float64) bool {
	p := Percent(fraction)

	t.mu.Lock()
	defer t.mu.Unlock()
	if p <= t.latest && t.started {
		return false
	}
	t.latest = p
	t.started = true
	if t.warning == WarningStalled {
		t.warning = ""
	}

	now := t.now()
	if t.sent >= 0 && now.Sub(t.lastAt) < t.interval {
		return true
	}
	t.emit(now)
	return true
}

// Warn sets the current warning and emits it immediately.
func (t *Throttle) Warn(warning string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.warning == warning {
		return
	}
	t.warning = warning
	t.emit(t.now())
}

// Complete emits the terminal 100. It reports false, and emits nothing, once
// the throttle is closed.
func (t *Throttle) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	t.latest = 100
	t.warning = ""
	t.started = true
	t.emit(t.now())
	return true
}

// Close gates the callback. It waits for an update already being delivered,
// so the callback is idle once Close returns. Updates are still tracked for
// snapshots. The callback must not close its own throttle.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed.Store(true)
}

// Current returns the latest percent and warning, emitted or not.
func (t *Throttle) Current() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.warning
}

// emit sends the latest state. Lock must be held.
func (t *Throttle) emit(now time.Time) {
	if t.fn == nil || t.closed.Load() {
		return
	}
	t.sent = t.latest
	t.lastAt = now
	t.fn(Progress{TaskID: t.taskID, Percent: t.latest, Warning: t.warning})
}

// StuckDetector raises soft warnings for long-running work: stalled when no
// progress advance happened for stallAfter, slow once the work has run for
// slowAfter. It never fails the work.
type StuckDetector struct {
	stallAfter time.Duration
	warn       func(string)

	mu      sync.Mutex
	stall   *time.Timer
	slow    *time.Timer
	stopped bool
}

// NewStuckDetector starts both timers.
func NewStuckDetector(stallAfter, slowAfter time.Duration, warn func(string)) *StuckDetector {
	d := &StuckDetector{stallAfter: stallAfter, warn: warn}
	d.mu.Lock()
	defer d.mu.Unlock()
	if stallAfter > 0 {
		d.stall = time.AfterFunc(stallAfter, func() { d.fire(WarningStalled) })
	}
	if slowAfter > 0 {
		d.slow = time.AfterFunc(slowAfter, func() { d.fire(WarningSlow) })
	}
	return d
}

func (d *StuckDetector) fire(w string) {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped && d.warn != nil {
		d.warn(w)
	}
}

// Advance restarts the stall timer.
func (d *StuckDetector) Advance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.stall == nil {
		return
	}
	d.stall.Reset(d.stallAfter)
}

// Stop stops both timers. It is safe to call more than once.
func (d *StuckDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.stall != nil {
		d.stall.Stop()
	}
	if d.slow != nil {
		d.slow.Stop()
	}
}

// Stopped reports whether Stop has run.
func (d *StuckDetector) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// taskReporter adapts a task's throttle and stuck detector to Reporter.
type taskReporter struct {
	throttle *Throttle
	stuck    *StuckDetector
}

func (r taskReporter) Progress(fraction float64) {
	if r.throttle.Report(fraction) && r.stuck != nil {
		r.stuck.Advance()
	}
}

func (r taskReporter) Warn(warning string) {
	r.throttle.Warn(warning)
}
