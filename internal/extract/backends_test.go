package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
)

func ocrRegistry(p providers.OCRProvider) *providers.Registry {
	r := providers.NewRegistry()
	r.RegisterOCR("mock", p)
	return r
}

func TestImageBackend(t *testing.T) {
	t.Run("maps OCR progress into the 0.1-0.9 band", func(t *testing.T) {
		p := providers.NewMockOCRProvider()
		p.ResponseText = "Country Loaf\n500 g flour"
		b := NewImageBackend(ocrRegistry(p), "mock", nil)
		rep := &recReporter{}

		text, err := b.Extract(context.Background(), RawInput{Data: []byte("img")}, rep)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if text != "Country Loaf\n500 g flour" {
			t.Errorf("text = %q", text)
		}
		vals := rep.values()
		if vals[0] != ocrBandStart {
			t.Errorf("first progress = %v", vals[0])
		}
		for _, v := range vals {
			if v < ocrBandStart || v > ocrBandEnd+1e-9 {
				t.Errorf("progress %v outside OCR band", v)
			}
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		p := providers.NewMockOCRProvider()
		p.FailTimes = 2
		p.ResponseText = "enough text for a recipe"
		b := NewImageBackend(ocrRegistry(p), "mock", nil)

		if _, err := b.Extract(context.Background(), RawInput{Data: []byte("img")}, &recReporter{}); err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if p.RequestCount() != 3 {
			t.Errorf("requests = %d, want 3", p.RequestCount())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		p := providers.NewMockOCRProvider()
		p.ShouldFail = true
		p.FailErr = &providers.StatusError{Provider: "mock", StatusCode: 400, Message: "bad image"}
		b := NewImageBackend(ocrRegistry(p), "mock", nil)

		_, err := b.Extract(context.Background(), RawInput{Data: []byte("img")}, &recReporter{})
		var se *providers.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("err = %v, want StatusError", err)
		}
		if p.RequestCount() != 1 {
			t.Errorf("requests = %d, want 1", p.RequestCount())
		}
	})

	t.Run("insufficient text is empty-result", func(t *testing.T) {
		p := providers.NewMockOCRProvider()
		p.ResponseText = " a b c \n"
		b := NewImageBackend(ocrRegistry(p), "mock", nil)

		_, err := b.Extract(context.Background(), RawInput{Data: []byte("img")}, &recReporter{})
		if !errors.Is(err, recipe.ErrEmpty) {
			t.Fatalf("err = %v, want empty-result", err)
		}
	})

	t.Run("ready requires a registered provider", func(t *testing.T) {
		b := NewImageBackend(providers.NewRegistry(), "tesseract", nil)
		if err := b.Ready(); err == nil {
			t.Error("Ready() = nil without a provider")
		}
		b.SetProvider("mock")
		if b.Provider() != "mock" {
			t.Errorf("Provider() = %q", b.Provider())
		}
	})
}

func TestCancelMidOCR(t *testing.T) {
	p := providers.NewMockOCRProvider()
	p.Steps = 2
	p.Block = make(chan struct{})
	b := NewImageBackend(ocrRegistry(p), "mock", nil)

	cfg := testConfig()
	cfg.StallAfter = 20 * time.Millisecond
	cfg.SlowAfter = 30 * time.Millisecond
	o := New(cfg, nil, b)

	var log progressLog
	reached := make(chan struct{})
	var once sync.Once
	fn := func(pr Progress) {
		log.fn(pr)
		if pr.Percent >= 50 {
			once.Do(func() { close(reached) })
		}
	}

	task := o.Start(context.Background(), RawInput{Kind: KindImage, Data: []byte("img")}, fn).(*Task)
	<-reached
	task.Cancel()
	if kind := failureKind(t, task.Wait(context.Background())); kind != recipe.KindCancelled {
		t.Fatalf("kind = %s, want cancelled", kind)
	}
	time.Sleep(10 * time.Millisecond)
	after := log.len()

	close(p.Block)
	time.Sleep(60 * time.Millisecond)
	if log.len() != after {
		t.Errorf("callbacks fired after cancel: %v", log.all()[after:])
	}
	if o.Tasks().Len() != 0 {
		t.Error("task still active after cancel")
	}
}

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)
	buf.WriteString("%PDF-1.4\n")

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// pageRunner fakes pdftotext, answering with per-page text.
type pageRunner struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
	paths []string
	fail  string
}

func (r *pageRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	page := args[1]
	r.mu.Lock()
	r.calls = append(r.calls, page)
	r.paths = append(r.paths, args[len(args)-2])
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if page == r.fail {
		return nil, []byte("Syntax Error"), errors.New("exit status 1")
	}
	return []byte(r.pages[page] + "\f"), nil, nil
}

func TestPDFBackend(t *testing.T) {
	t.Run("standard strategy keeps page order", func(t *testing.T) {
		runner := &pageRunner{pages: map[string]string{
			"1": "Country Loaf",
			"2": "",
			"3": "Ingredients:\n500 g flour",
		}}
		b := NewPDFBackend(PDFConfig{Runner: runner, Workers: 3})
		rep := &recReporter{}

		text, err := b.Extract(context.Background(), RawInput{Data: minimalPDF(3)}, rep)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if text != "Country Loaf\n\nIngredients:\n500 g flour" {
			t.Errorf("text = %q", text)
		}
		if len(runner.calls) != 3 {
			t.Errorf("pdftotext calls = %d", len(runner.calls))
		}
		vals := rep.values()
		if last := vals[len(vals)-1]; last < 0.899 || last > 0.901 {
			t.Errorf("final progress = %v, want 0.9", last)
		}
		if _, err := os.Stat(runner.paths[0]); !os.IsNotExist(err) {
			t.Error("temp PDF not removed")
		}
	})

	t.Run("chunked strategy", func(t *testing.T) {
		pages := map[string]string{}
		for i := 1; i <= 7; i++ {
			pages[fmt.Sprint(i)] = fmt.Sprintf("page %d", i)
		}
		runner := &pageRunner{pages: pages}
		b := NewPDFBackend(PDFConfig{Runner: runner, ChunkThreshold: 1, ChunkPages: 3, YieldDelay: 1})
		rep := &recReporter{}

		text, err := b.Extract(context.Background(), RawInput{Data: minimalPDF(7)}, rep)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !strings.HasPrefix(text, "page 1\n\npage 2") || !strings.HasSuffix(text, "page 7") {
			t.Errorf("text = %q", text)
		}
		vals := rep.values()
		for i := 1; i < len(vals); i++ {
			if vals[i] < vals[i-1] {
				t.Errorf("progress not monotonic: %v", vals)
			}
		}
	})

	t.Run("chunk size is clamped", func(t *testing.T) {
		if got := NewPDFBackend(PDFConfig{Runner: &pageRunner{}, ChunkPages: 10}).ChunkPages(); got != 5 {
			t.Errorf("ChunkPages = %d, want 5", got)
		}
		if got := NewPDFBackend(PDFConfig{Runner: &pageRunner{}, ChunkPages: 1}).ChunkPages(); got != 3 {
			t.Errorf("ChunkPages = %d, want 3", got)
		}
	})

	t.Run("scanned PDF is empty-result", func(t *testing.T) {
		b := NewPDFBackend(PDFConfig{Runner: &pageRunner{pages: map[string]string{}}})
		_, err := b.Extract(context.Background(), RawInput{Data: minimalPDF(2)}, &recReporter{})

		var re *recipe.Error
		if !errors.As(err, &re) || re.Kind != recipe.KindEmpty {
			t.Fatalf("err = %v, want empty-result", err)
		}
		if !strings.Contains(re.Remedy, "photo") {
			t.Errorf("remedy = %q", re.Remedy)
		}
	})

	t.Run("corrupt PDF is unsupported", func(t *testing.T) {
		b := NewPDFBackend(PDFConfig{Runner: &pageRunner{}})
		_, err := b.Extract(context.Background(), RawInput{Data: []byte("%PDF-1.4\nnot really")}, &recReporter{})
		if !errors.Is(err, recipe.ErrUnsupported) {
			t.Fatalf("err = %v, want unsupported-format", err)
		}
	})

	t.Run("page failure", func(t *testing.T) {
		runner := &pageRunner{pages: map[string]string{"1": "a"}, fail: "2"}
		b := NewPDFBackend(PDFConfig{Runner: runner})
		_, err := b.Extract(context.Background(), RawInput{Data: minimalPDF(2)}, &recReporter{})
		if err == nil || !strings.Contains(err.Error(), "page 2") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("cancelled between chunks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		runner := &pageRunner{pages: map[string]string{"1": "a", "2": "b", "3": "c"}}
		b := NewPDFBackend(PDFConfig{Runner: runner, ChunkThreshold: 1, ChunkPages: 3, YieldDelay: 1})
		rep := &cancelAt{recReporter: &recReporter{}, at: 0.5, cancel: cancel}

		_, err := b.Extract(ctx, RawInput{Data: minimalPDF(6)}, rep)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		runner.mu.Lock()
		defer runner.mu.Unlock()
		if len(runner.calls) != 3 {
			t.Errorf("pdftotext ran %d times, want only the first chunk", len(runner.calls))
		}
	})
}

// cancelAt cancels once progress reaches a threshold.
type cancelAt struct {
	*recReporter
	at     float64
	cancel context.CancelFunc
}

func (c *cancelAt) Progress(f float64) {
	c.recReporter.Progress(f)
	if f >= c.at {
		c.cancel()
	}
}
