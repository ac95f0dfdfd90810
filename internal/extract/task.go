package extract

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/larder/internal/recipe"
)

// State is the lifecycle state of a task.
type State string

const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Task is the handle for an extraction running in the background.
type Task struct {
	id       string
	kind     Kind
	size     int64
	started  time.Time
	cancel   context.CancelFunc
	throttle *Throttle

	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}

	mu       sync.Mutex
	result   Result
	finished time.Time
}

func (*Task) isResult() {}

func newTask(id string, kind Kind, size int64, cancel context.CancelFunc, throttle *Throttle) *Task {
	return &Task{
		id:       id,
		kind:     kind,
		size:     size,
		started:  time.Now(),
		cancel:   cancel,
		throttle: throttle,
		done:     make(chan struct{}),
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Kind returns the input kind being extracted.
func (t *Task) Kind() Kind { return t.kind }

// Done is closed once the task has a result.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel stops the task. No progress callback is running or starts after
// Cancel returns, and Wait reports a cancelled failure. Cancelling a finished
// task is a no-op.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.result != nil || !t.cancelled.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.throttle.Close()
	t.cancel()
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Wait blocks until the task finishes or ctx is done. The result is Text or
// *Failure. Giving up on ctx does not cancel the task.
func (t *Task) Wait(ctx context.Context) Result {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result
	case <-ctx.Done():
		return fail(recipe.AsError(t.kind.Source(), ctx.Err()))
	}
}

// finish records the result once and returns what was recorded. A task that
// was cancelled before its result landed records a cancelled failure, even if
// the backend produced text. Later calls are ignored.
func (t *Task) finish(r Result) Result {
	t.once.Do(func() {
		t.mu.Lock()
		if _, ok := r.(Text); ok && t.cancelled.Load() {
			r = fail(recipe.Cancelled(t.kind.Source()))
		}
		t.result = r
		t.finished = time.Now()
		t.mu.Unlock()
		close(t.done)
	})
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Snapshot is a point-in-time view of a task, suitable for polling.
type Snapshot struct {
	ID      string            `json:"id"`
	Kind    Kind              `json:"kind"`
	State   State             `json:"state"`
	Percent int               `json:"percent"`
	Warning string            `json:"warning,omitempty"`
	Bytes   int64             `json:"bytes"`
	Started time.Time         `json:"started"`
	Elapsed time.Duration     `json:"elapsed"`
	Text    string            `json:"text,omitempty"`
	Error   *recipe.ErrorInfo `json:"error,omitempty"`
}

// Snapshot returns the current view of the task.
func (t *Task) Snapshot() Snapshot {
	percent, warning := t.throttle.Current()
	s := Snapshot{
		ID:      t.id,
		Kind:    t.kind,
		State:   StateRunning,
		Percent: percent,
		Warning: warning,
		Bytes:   t.size,
		Started: t.started,
		Elapsed: time.Since(t.started),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return s
	}
	s.Elapsed = t.finished.Sub(t.started)
	switch r := t.result.(type) {
	case Text:
		s.State = StateDone
		s.Text = r.Content
	case *Failure:
		s.State = StateFailed
		if r.Err.Kind == recipe.KindCancelled {
			s.State = StateCancelled
		}
		s.Error = r.Err.Info()
	}
	return s
}

const historySize = 64

// Tasks tracks active tasks by id. Finished tasks leave the active set and
// are kept in a short history so callers can still read their result.
type Tasks struct {
	mu      sync.RWMutex
	active  map[string]*Task
	history []*Task
}

// NewTasks creates an empty task registry.
func NewTasks() *Tasks {
	return &Tasks{active: make(map[string]*Task)}
}

func (ts *Tasks) add(t *Task) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.active[t.id] = t
}

// remove moves a task from the active set to history.
func (ts *Tasks) remove(id string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.active[id]
	if !ok {
		return
	}
	delete(ts.active, id)
	ts.history = append(ts.history, t)
	if len(ts.history) > historySize {
		ts.history = ts.history[len(ts.history)-historySize:]
	}
}

// Get finds an active or recently finished task.
func (ts *Tasks) Get(id string) (*Task, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if t, ok := ts.active[id]; ok {
		return t, true
	}
	for i := len(ts.history) - 1; i >= 0; i-- {
		if ts.history[i].id == id {
			return ts.history[i], true
		}
	}
	return nil, false
}

// Len returns the number of active tasks.
func (ts *Tasks) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.active)
}

// Active returns snapshots of active tasks, oldest first.
func (ts *Tasks) Active() []Snapshot {
	ts.mu.RLock()
	tasks := make([]*Task, 0, len(ts.active))
	for _, t := range ts.active {
		tasks = append(tasks, t)
	}
	ts.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].started.Before(tasks[j].started) })
	out := make([]Snapshot, len(tasks))
	for i, t := range tasks {
		out[i] = t.Snapshot()
	}
	return out
}

// CancelAll cancels every active task. Used on shutdown.
func (ts *Tasks) CancelAll() {
	ts.mu.RLock()
	tasks := make([]*Task, 0, len(ts.active))
	for _, t := range ts.active {
		tasks = append(tasks, t)
	}
	ts.mu.RUnlock()
	for _, t := range tasks {
		t.Cancel()
	}
}
