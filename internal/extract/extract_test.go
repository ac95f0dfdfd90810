package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/larder/internal/recipe"
)

func TestResolveKind(t *testing.T) {
	tests := []struct {
		name string
		in   RawInput
		want Kind
	}{
		{"declared wins", RawInput{Kind: "pdf", Filename: "photo.jpg", Data: []byte("\x89PNG\r\n\x1a\n")}, KindPDF},
		{"declared mime", RawInput{Kind: "image/jpeg; q=1"}, KindImage},
		{"extension", RawInput{Filename: "Loaf.JPG", Data: []byte("whatever")}, KindImage},
		{"extension pdf", RawInput{Filename: "cookbook.pdf"}, KindPDF},
		{"png magic", RawInput{Data: []byte("\x89PNG\r\n\x1a\nrest")}, KindImage},
		{"jpeg magic", RawInput{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}}, KindImage},
		{"webp magic", RawInput{Data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")}, KindImage},
		{"pdf magic", RawInput{Data: []byte("%PDF-1.7\n")}, KindPDF},
		{"unknown declared falls through", RawInput{Kind: "banana", Data: []byte("%PDF-1.4")}, KindPDF},
		{"plain text", RawInput{Data: []byte("2 cups flour")}, KindText},
		{"docx by extension is text", RawInput{Filename: "gran.docx"}, KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveKind(tt.in); got != tt.want {
				t.Errorf("ResolveKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsWordProcessor(t *testing.T) {
	tests := []struct {
		name string
		in   RawInput
		want bool
	}{
		{"doc extension", RawInput{Filename: "recipe.doc"}, true},
		{"ole2", RawInput{Data: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1}}, true},
		{"rtf", RawInput{Data: []byte(`{\rtf1\ansi hello}`)}, true},
		{"docx zip", RawInput{Data: []byte("PK\x03\x04....[Content_Types].xml....word/document.xml")}, true},
		{"other zip", RawInput{Data: []byte("PK\x03\x04....photos/1.jpg")}, false},
		{"msword mime", RawInput{Kind: "application/msword"}, true},
		{"plain", RawInput{Filename: "notes.txt", Data: []byte("flour")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWordProcessor(tt.in); got != tt.want {
				t.Errorf("IsWordProcessor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBinary(t *testing.T) {
	text := []byte(strings.Repeat("500 g bread flour\n", 100))
	if IsBinary(text) {
		t.Error("recipe text flagged as binary")
	}
	accented := []byte(strings.Repeat("crème brûlée, sauté\t\n", 60))
	if IsBinary(accented) {
		t.Error("UTF-8 text flagged as binary")
	}
	noise := make([]byte, 2000)
	for i := range noise {
		noise[i] = byte(i * 7)
	}
	if !IsBinary(noise) {
		t.Error("byte noise not flagged as binary")
	}
	if IsBinary(nil) {
		t.Error("empty input flagged as binary")
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"utf8", []byte("café"), "café"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "flour"...), "flour"},
		{"utf16le bom", []byte{0xFF, 0xFE, 'o', 0, 'k', 0}, "ok"},
		{"utf16be bom", []byte{0xFE, 0xFF, 0, 'o', 0, 'k'}, "ok"},
		{"windows-1252", []byte("caf\xe9 cr\xe8me"), "café crème"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.data)
			if err != nil {
				t.Fatalf("DecodeText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigTimeout(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		kind Kind
		size int64
		want time.Duration
	}{
		{KindImage, 1 << 20, 4 * time.Minute},
		{KindText, 100, 10 * time.Second},
		{KindPDF, 1 << 20, 3 * time.Minute},
		{KindPDF, 5 << 20, 5 * time.Minute},
		{KindPDF, 19 << 20, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := cfg.Timeout(tt.kind, tt.size); got != tt.want {
			t.Errorf("Timeout(%s, %d) = %v, want %v", tt.kind, tt.size, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-1, 0}, {0, 0}, {0.5, 45}, {1, 90}, {2, 90},
	}
	for _, tt := range tests {
		if got := Percent(tt.in); got != tt.want {
			t.Errorf("Percent(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// progressLog collects progress callbacks.
type progressLog struct {
	mu   sync.Mutex
	seen []Progress
}

func (l *progressLog) fn(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, p)
}

func (l *progressLog) all() []Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Progress(nil), l.seen...)
}

func (l *progressLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func TestThrottle(t *testing.T) {
	var log progressLog
	th := NewThrottle("t1", 500*time.Millisecond, log.fn)
	now := time.Unix(0, 0)
	th.now = func() time.Time { return now }

	th.Report(0.1) // first always passes
	th.Report(0.2) // coalesced
	th.Report(0.1) // backwards, ignored
	now = now.Add(600 * time.Millisecond)
	th.Report(0.3)
	th.Report(1.0)
	th.Complete()

	got := log.all()
	want := []int{9, 27, 100}
	if len(got) != len(want) {
		t.Fatalf("emitted %v, want percents %v", got, want)
	}
	for i, p := range got {
		if p.Percent != want[i] || p.TaskID != "t1" {
			t.Errorf("update %d = %+v, want %d", i, p, want[i])
		}
	}
	if pct, _ := th.Current(); pct != 100 {
		t.Errorf("Current() = %d", pct)
	}
}

func TestThrottleClose(t *testing.T) {
	var log progressLog
	th := NewThrottle("t1", 0, log.fn)
	th.Report(0.1)
	th.Close()
	th.Report(0.5)
	th.Warn(WarningSlow)
	if th.Complete() {
		t.Error("Complete() = true after Close")
	}

	if n := log.len(); n != 1 {
		t.Errorf("got %d callbacks, want 1", n)
	}
	if pct, w := th.Current(); pct != 45 || w != WarningSlow {
		t.Errorf("Current() = %d %q, snapshots should keep tracking", pct, w)
	}
}

func TestStuckDetector(t *testing.T) {
	t.Run("stalled then slow", func(t *testing.T) {
		var mu sync.Mutex
		var warnings []string
		d := NewStuckDetector(20*time.Millisecond, 60*time.Millisecond, func(w string) {
			mu.Lock()
			warnings = append(warnings, w)
			mu.Unlock()
		})
		defer d.Stop()

		time.Sleep(120 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if len(warnings) != 2 || warnings[0] != WarningStalled || warnings[1] != WarningSlow {
			t.Errorf("warnings = %v", warnings)
		}
	})

	t.Run("advance postpones stall", func(t *testing.T) {
		var fired atomic.Int32
		d := NewStuckDetector(40*time.Millisecond, 0, func(string) { fired.Add(1) })
		defer d.Stop()
		for i := 0; i < 4; i++ {
			time.Sleep(15 * time.Millisecond)
			d.Advance()
		}
		if fired.Load() != 0 {
			t.Error("stall fired despite progress")
		}
	})

	t.Run("stop prevents warnings", func(t *testing.T) {
		var fired atomic.Int32
		d := NewStuckDetector(10*time.Millisecond, 10*time.Millisecond, func(string) { fired.Add(1) })
		d.Stop()
		d.Stop()
		time.Sleep(40 * time.Millisecond)
		if fired.Load() != 0 || !d.Stopped() {
			t.Errorf("fired = %d after Stop", fired.Load())
		}
	})
}

// fakeBackend is a scriptable Backend.
type fakeBackend struct {
	kind  Kind
	calls atomic.Int32
	ready error
	run   func(ctx context.Context, in RawInput, rep Reporter) (string, error)
}

func (f *fakeBackend) Kind() Kind   { return f.kind }
func (f *fakeBackend) Ready() error { return f.ready }
func (f *fakeBackend) Extract(ctx context.Context, in RawInput, rep Reporter) (string, error) {
	f.calls.Add(1)
	return f.run(ctx, in, rep)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProgressInterval = 0
	return cfg
}

func failureKind(t *testing.T, r Result) recipe.Kind {
	t.Helper()
	f, ok := r.(*Failure)
	if !ok {
		t.Fatalf("result = %#v, want *Failure", r)
	}
	return f.Err.Kind
}

func TestOrchestratorRejectsOversizedBeforeBackend(t *testing.T) {
	backend := &fakeBackend{kind: KindPDF, run: func(context.Context, RawInput, Reporter) (string, error) {
		return "text", nil
	}}
	o := New(DefaultConfig(), nil, backend)

	data := make([]byte, 21<<20)
	copy(data, "%PDF-1.4")
	r := o.Start(context.Background(), RawInput{Data: data}, nil)

	if kind := failureKind(t, r); kind != recipe.KindOversized {
		t.Errorf("kind = %s, want oversized", kind)
	}
	if !errors.Is(r.(*Failure), recipe.ErrOversized) {
		t.Error("errors.Is(ErrOversized) = false")
	}
	if backend.calls.Load() != 0 {
		t.Error("backend was invoked for an oversized input")
	}
	if o.Tasks().Len() != 0 {
		t.Error("task registered for a rejected input")
	}
}

func TestOrchestratorExtract(t *testing.T) {
	backend := &fakeBackend{kind: KindText, run: func(ctx context.Context, in RawInput, rep Reporter) (string, error) {
		for _, f := range []float64{0.25, 0.5, 0.75} {
			rep.Progress(f)
		}
		return "  Country Loaf\n500 g flour  ", nil
	}}
	o := New(testConfig(), nil, backend)

	var log progressLog
	r := o.Extract(context.Background(), RawInput{Data: []byte("x")}, log.fn)

	text, ok := r.(Text)
	if !ok {
		t.Fatalf("result = %#v, want Text", r)
	}
	if text.Content != "Country Loaf\n500 g flour" || text.Kind != KindText {
		t.Errorf("text = %+v", text)
	}

	seen := log.all()
	if len(seen) == 0 || seen[len(seen)-1].Percent != 100 {
		t.Fatalf("progress = %v, want to end at 100", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Percent < seen[i-1].Percent {
			t.Errorf("progress went backwards: %v", seen)
		}
	}
	for _, p := range seen[:len(seen)-1] {
		if p.Percent > 99 {
			t.Errorf("reported %d before completion", p.Percent)
		}
	}
	if o.Tasks().Len() != 0 {
		t.Error("finished task still active")
	}
}

func TestOrchestratorFailures(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, in RawInput, rep Reporter) (string, error)
		want recipe.Kind
	}{
		{"empty text", func(context.Context, RawInput, Reporter) (string, error) { return " \n ", nil }, recipe.KindEmpty},
		{"typed error passes through", func(context.Context, RawInput, Reporter) (string, error) {
			return "", recipe.Unsupported(recipe.SourceText, "binary data", "")
		}, recipe.KindUnsupported},
		{"raw error becomes unknown", func(context.Context, RawInput, Reporter) (string, error) {
			return "", fmt.Errorf("disk on fire")
		}, recipe.KindUnknown},
		{"panic becomes unknown", func(context.Context, RawInput, Reporter) (string, error) {
			panic("boom")
		}, recipe.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(testConfig(), nil, &fakeBackend{kind: KindText, run: tt.run})
			r := o.Extract(context.Background(), RawInput{Data: []byte("x")}, nil)
			if kind := failureKind(t, r); kind != tt.want {
				t.Errorf("kind = %s, want %s", kind, tt.want)
			}
		})
	}
}

func TestOrchestratorNoBackend(t *testing.T) {
	o := New(testConfig(), nil)
	r := o.Start(context.Background(), RawInput{Data: []byte("flour")}, nil)
	if kind := failureKind(t, r); kind != recipe.KindUnsupported {
		t.Errorf("kind = %s", kind)
	}

	o.Register(&fakeBackend{kind: KindText, ready: errors.New("missing tool")})
	r = o.Start(context.Background(), RawInput{Data: []byte("flour")}, nil)
	if kind := failureKind(t, r); kind != recipe.KindUnknown {
		t.Errorf("kind = %s", kind)
	}
}

func TestOrchestratorTimeout(t *testing.T) {
	var sawCancel atomic.Bool
	backend := &fakeBackend{kind: KindImage, run: func(ctx context.Context, in RawInput, rep Reporter) (string, error) {
		<-ctx.Done()
		sawCancel.Store(true)
		return "", ctx.Err()
	}}
	cfg := testConfig()
	cfg.ImageTimeout = 30 * time.Millisecond
	o := New(cfg, nil, backend)

	r := o.Extract(context.Background(), RawInput{Kind: KindImage, Data: []byte("img")}, nil)
	if kind := failureKind(t, r); kind != recipe.KindTimeout {
		t.Errorf("kind = %s, want timeout", kind)
	}
	time.Sleep(20 * time.Millisecond)
	if !sawCancel.Load() {
		t.Error("backend context was not cancelled on timeout")
	}
}

func TestTaskCancel(t *testing.T) {
	started := make(chan struct{})
	backend := &fakeBackend{kind: KindImage, run: func(ctx context.Context, in RawInput, rep Reporter) (string, error) {
		rep.Progress(0.2)
		close(started)
		for i := 3; ; i++ {
			select {
			case <-ctx.Done():
				// Keep reporting after cancellation; none of it may surface.
				rep.Progress(0.9)
				return "", ctx.Err()
			case <-time.After(5 * time.Millisecond):
				rep.Progress(float64(i%10) / 10)
			}
		}
	}}
	cfg := testConfig()
	cfg.StallAfter = 20 * time.Millisecond
	cfg.SlowAfter = 30 * time.Millisecond
	o := New(cfg, nil, backend)

	var log progressLog
	r := o.Start(context.Background(), RawInput{Kind: KindImage, Data: []byte("img")}, log.fn)
	task, ok := r.(*Task)
	if !ok {
		t.Fatalf("Start() = %#v, want *Task", r)
	}
	if _, found := o.Tasks().Get(task.ID()); !found {
		t.Error("task not registered")
	}

	<-started
	task.Cancel()
	// A callback already running when Cancel returned may finish; none may
	// start afterwards.
	time.Sleep(10 * time.Millisecond)
	after := log.len()

	res := task.Wait(context.Background())
	if kind := failureKind(t, res); kind != recipe.KindCancelled {
		t.Errorf("kind = %s, want cancelled", kind)
	}

	time.Sleep(60 * time.Millisecond)
	if n := log.len(); n != after {
		t.Errorf("%d callbacks fired after Cancel", n-after)
	}
	for _, p := range log.all() {
		if p.Percent == 100 {
			t.Error("completion reported for a cancelled task")
		}
	}
	if o.Tasks().Len() != 0 {
		t.Error("cancelled task still active")
	}
	if snap := task.Snapshot(); snap.State != StateCancelled {
		t.Errorf("snapshot state = %s", snap.State)
	}
	task.Cancel() // no-op
}

func TestTaskCancelDuringCompletion(t *testing.T) {
	backend := &fakeBackend{kind: KindText, run: func(context.Context, RawInput, Reporter) (string, error) {
		return "Rye Bread\n500 g rye flour", nil
	}}
	o := New(testConfig(), nil, backend)

	atHundred := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fn := func(p Progress) {
		if p.Percent == 100 {
			once.Do(func() { close(atHundred) })
			<-release
		}
	}
	task := o.Start(context.Background(), RawInput{Kind: KindText, Data: []byte("x")}, fn).(*Task)
	<-atHundred

	cancelled := make(chan struct{})
	go func() {
		task.Cancel()
		close(cancelled)
	}()
	select {
	case <-cancelled:
		t.Fatal("Cancel returned while the progress callback was still running")
	case <-time.After(20 * time.Millisecond):
	}
	for !task.Cancelled() {
		time.Sleep(time.Millisecond)
	}
	close(release)
	<-cancelled

	if !task.Cancelled() {
		t.Error("Cancelled() = false")
	}
	res := task.Wait(context.Background())
	if kind := failureKind(t, res); kind != recipe.KindCancelled {
		t.Errorf("kind = %s, want cancelled", kind)
	}
	if snap := task.Snapshot(); snap.State != StateCancelled {
		t.Errorf("snapshot state = %s", snap.State)
	}
}

func TestTaskCancelAfterFinish(t *testing.T) {
	backend := &fakeBackend{kind: KindText, run: func(context.Context, RawInput, Reporter) (string, error) {
		return "Flatbread", nil
	}}
	o := New(testConfig(), nil, backend)
	task := o.Start(context.Background(), RawInput{Kind: KindText, Data: []byte("x")}, nil).(*Task)
	if _, ok := task.Wait(context.Background()).(Text); !ok {
		t.Fatal("task did not produce text")
	}

	task.Cancel()
	if task.Cancelled() {
		t.Error("Cancelled() = true for a task that had already finished")
	}
	if _, ok := task.Wait(context.Background()).(Text); !ok {
		t.Error("result changed after a late Cancel")
	}
}

func TestExtractContextCancel(t *testing.T) {
	backend := &fakeBackend{kind: KindText, run: func(ctx context.Context, in RawInput, rep Reporter) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	o := New(testConfig(), nil, backend)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	r := o.Extract(ctx, RawInput{Data: []byte("x")}, nil)
	if kind := failureKind(t, r); kind != recipe.KindCancelled {
		t.Errorf("kind = %s, want cancelled", kind)
	}
}

func TestTasksHistory(t *testing.T) {
	backend := &fakeBackend{kind: KindText, run: func(context.Context, RawInput, Reporter) (string, error) {
		return "flour and water", nil
	}}
	o := New(testConfig(), nil, backend)

	r := o.Start(context.Background(), RawInput{Data: []byte("x")}, nil)
	task := r.(*Task)
	<-task.Done()

	got, ok := o.Tasks().Get(task.ID())
	if !ok {
		t.Fatal("finished task not found in history")
	}
	snap := got.Snapshot()
	if snap.State != StateDone || snap.Percent != 100 || snap.Text != "flour and water" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(o.Tasks().Active()) != 0 {
		t.Error("Active() should be empty")
	}
}

func TestTextBackend(t *testing.T) {
	b := NewTextBackend(nil)
	rep := &recReporter{}

	tests := []struct {
		name     string
		in       RawInput
		want     string
		wantKind recipe.Kind
	}{
		{"plain", RawInput{Data: []byte("Ingredients:\n2 cups flour")}, "Ingredients:\n2 cups flour", ""},
		{"utf16", RawInput{Data: []byte{0xFF, 0xFE, 'h', 0, 'i', 0}}, "hi", ""},
		{"word doc", RawInput{Filename: "gran.docx", Data: []byte("PK\x03\x04word/")}, "", recipe.KindUnsupported},
		{"binary", RawInput{Data: bytes.Repeat([]byte{0x00, 0x01, 0x02, 0xFF}, 300)}, "", recipe.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Extract(context.Background(), tt.in, rep)
			if tt.wantKind != "" {
				var re *recipe.Error
				if !errors.As(err, &re) || re.Kind != tt.wantKind {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				if tt.name == "word doc" && !strings.Contains(re.Remedy, "paste") {
					t.Errorf("remedy = %q", re.Remedy)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// recReporter records backend-level progress.
type recReporter struct {
	mu    sync.Mutex
	vals  []float64
	warns []string
}

func (r *recReporter) Progress(f float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = append(r.vals, f)
}

func (r *recReporter) Warn(w string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, w)
}

func (r *recReporter) values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.vals...)
}
