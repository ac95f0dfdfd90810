package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/larder/internal/recipe"
)

// Backend produces raw text for one input kind.
type Backend interface {
	Kind() Kind
	// Ready reports whether the backend can run (tools present, provider
	// configured). It is checked once per request before any work starts.
	Ready() error
	// Extract returns the text. It must honor ctx between internal steps.
	Extract(ctx context.Context, in RawInput, rep Reporter) (string, error)
}

// Config holds size limits, timeouts and progress settings.
type Config struct {
	MaxImageBytes int64
	MaxPDFBytes   int64
	MaxTextBytes  int64

	ImageTimeout      time.Duration
	TextTimeout       time.Duration
	PDFTimeoutBase    time.Duration // Also the minimum
	PDFTimeoutPer2MiB time.Duration
	PDFTimeoutMax     time.Duration

	ProgressInterval time.Duration
	StallAfter       time.Duration
	SlowAfter        time.Duration
}

// DefaultConfig returns the default limits and timeouts.
func DefaultConfig() Config {
	return Config{
		MaxImageBytes:     15 << 20,
		MaxPDFBytes:       20 << 20,
		MaxTextBytes:      10 << 20,
		ImageTimeout:      4 * time.Minute,
		TextTimeout:       10 * time.Second,
		PDFTimeoutBase:    3 * time.Minute,
		PDFTimeoutPer2MiB: time.Minute,
		PDFTimeoutMax:     10 * time.Minute,
		ProgressInterval:  500 * time.Millisecond,
		StallAfter:        15 * time.Second,
		SlowAfter:         30 * time.Second,
	}
}

// Limit returns the size limit for a kind.
func (c Config) Limit(k Kind) int64 {
	switch k {
	case KindImage:
		return c.MaxImageBytes
	case KindPDF:
		return c.MaxPDFBytes
	default:
		return c.MaxTextBytes
	}
}

// Timeout returns the budget for extracting size bytes of kind k. PDFs get
// the base plus one step per 2 MiB, clamped to [base, max].
func (c Config) Timeout(k Kind, size int64) time.Duration {
	switch k {
	case KindImage:
		return c.ImageTimeout
	case KindPDF:
		d := c.PDFTimeoutBase + time.Duration(size/(2<<20))*c.PDFTimeoutPer2MiB
		if c.PDFTimeoutMax > 0 && d > c.PDFTimeoutMax {
			d = c.PDFTimeoutMax
		}
		return max(d, c.PDFTimeoutBase)
	default:
		return c.TextTimeout
	}
}

// Orchestrator dispatches inputs to backends and owns the task registry.
type Orchestrator struct {
	mu       sync.RWMutex
	cfg      Config
	backends map[Kind]Backend

	tasks  *Tasks
	logger *slog.Logger
}

// New creates an orchestrator with the given backends.
func New(cfg Config, logger *slog.Logger, backends ...Backend) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:      cfg,
		backends: make(map[Kind]Backend),
		tasks:    NewTasks(),
		logger:   logger,
	}
	for _, b := range backends {
		o.Register(b)
	}
	return o
}

// Register adds or replaces the backend for its kind.
func (o *Orchestrator) Register(b Backend) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backends[b.Kind()] = b
}

// Backends returns the registered kinds, sorted.
func (o *Orchestrator) Backends() []Kind {
	o.mu.RLock()
	defer o.mu.RUnlock()
	kinds := make([]Kind, 0, len(o.backends))
	for k := range o.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// SetConfig swaps limits and timeouts. Running tasks keep theirs.
func (o *Orchestrator) SetConfig(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
}

// Config returns the current configuration.
func (o *Orchestrator) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// Tasks returns the task registry.
func (o *Orchestrator) Tasks() *Tasks { return o.tasks }

// admit resolves the kind, enforces the size limit and picks a ready
// backend. Nothing here touches the backend's Extract.
func (o *Orchestrator) admit(in RawInput) (Kind, Backend, Config, *recipe.Error) {
	o.mu.RLock()
	cfg := o.cfg
	o.mu.RUnlock()

	kind := ResolveKind(in)
	if limit := cfg.Limit(kind); limit > 0 && (in.Truncated || in.Size() > limit) {
		size := in.Size()
		if in.Truncated && in.DeclaredSize <= 0 {
			size = 0 // unknown
		}
		return kind, nil, cfg, recipe.Oversized(kind.Source(), size, limit)
	}

	o.mu.RLock()
	b, ok := o.backends[kind]
	o.mu.RUnlock()
	if !ok {
		return kind, nil, cfg, recipe.Unsupported(kind.Source(), string(kind), "")
	}
	if err := b.Ready(); err != nil {
		return kind, nil, cfg, recipe.Unknown(kind.Source(), fmt.Errorf("%s extraction unavailable: %w", kind, err))
	}
	return kind, b, cfg, nil
}

// Start begins extraction in the background and returns a *Task, or a
// *Failure when the input is rejected up front. ctx cancels the task.
func (o *Orchestrator) Start(ctx context.Context, in RawInput, fn ProgressFunc) Result {
	kind, backend, cfg, rerr := o.admit(in)
	if rerr != nil {
		o.logger.Warn("extraction rejected", "kind", kind, "bytes", in.Size(), "error", rerr)
		return fail(rerr)
	}

	id := uuid.New().String()
	taskCtx, cancel := context.WithCancel(ctx)
	throttle := NewThrottle(id, cfg.ProgressInterval, fn)
	task := newTask(id, kind, in.Size(), cancel, throttle)
	o.tasks.add(task)

	o.logger.Info("extraction started", "task_id", id, "kind", kind, "bytes", in.Size())
	go o.run(taskCtx, task, backend, in, cfg)
	return task
}

// Extract runs an extraction to completion. The result is Text or *Failure;
// cancelling ctx cancels the work.
func (o *Orchestrator) Extract(ctx context.Context, in RawInput, fn ProgressFunc) Result {
	r := o.Start(ctx, in, fn)
	task, ok := r.(*Task)
	if !ok {
		return r
	}
	<-task.Done()
	return task.Wait(context.Background())
}

type backendOutcome struct {
	text string
	err  error
}

// run races the backend against the timeout and cancellation. Every exit
// path stops the timers, removes the task from the active set and records
// exactly one result.
func (o *Orchestrator) run(ctx context.Context, task *Task, backend Backend, in RawInput, cfg Config) {
	start := time.Now()
	source := task.kind.Source()
	timeout := cfg.Timeout(task.kind, in.Size())
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout(task.kind, in.Size())
	}

	var stuck *StuckDetector
	if task.kind == KindImage {
		stuck = NewStuckDetector(cfg.StallAfter, cfg.SlowAfter, task.throttle.Warn)
	}
	timer := time.NewTimer(timeout)
	defer func() {
		timer.Stop()
		if stuck != nil {
			stuck.Stop()
		}
		task.cancel()
		o.tasks.remove(task.id)
	}()

	rep := taskReporter{throttle: task.throttle, stuck: stuck}
	done := make(chan backendOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				o.logger.Error("extraction backend panicked", "task_id", task.id, "kind", task.kind, "panic", p)
				done <- backendOutcome{err: recipe.Unknown(source, fmt.Errorf("backend panic: %v", p))}
			}
		}()
		rep.Progress(0)
		text, err := backend.Extract(ctx, in, rep)
		done <- backendOutcome{text: text, err: err}
	}()

	var res Result
	select {
	case out := <-done:
		res = o.settle(ctx, task, out)
	case <-timer.C:
		task.throttle.Close()
		task.cancel()
		res = fail(recipe.Timeout(source, timeout))
	case <-ctx.Done():
		task.throttle.Close()
		res = fail(recipe.Cancelled(source))
	}

	dur := time.Since(start)
	if r, ok := res.(Text); ok {
		r.Duration = dur
		res = r
		if task.Cancelled() || !task.throttle.Complete() {
			res = fail(recipe.Cancelled(source))
		}
	}
	if _, ok := res.(*Failure); ok {
		task.throttle.Close()
	}

	switch r := task.finish(res).(type) {
	case Text:
		o.logger.Info("extraction complete", "task_id", task.id, "kind", task.kind, "chars", len(r.Content), "duration_ms", dur.Milliseconds())
	case *Failure:
		o.logger.Warn("extraction failed", "task_id", task.id, "kind", task.kind, "error_kind", r.Err.Kind, "error", r.Err, "duration_ms", dur.Milliseconds())
	}
}

// settle converts a backend outcome into a Result.
func (o *Orchestrator) settle(ctx context.Context, task *Task, out backendOutcome) Result {
	source := task.kind.Source()
	if ctx.Err() != nil {
		return fail(recipe.Cancelled(source))
	}
	if out.err != nil {
		return fail(recipe.AsError(source, out.err))
	}
	text := strings.TrimSpace(out.text)
	if text == "" {
		return fail(recipe.Empty(source, ""))
	}
	return Text{Content: text, Kind: task.kind}
}
