package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
)

// PDF chunking defaults.
const (
	DefaultChunkThreshold = 5 << 20
	DefaultChunkPages     = 4
	DefaultYieldDelay     = 50 * time.Millisecond
	minChunkPages         = 3
	maxChunkPages         = 5
)

// PDFConfig configures the PDF backend.
type PDFConfig struct {
	Binary         string           // pdftotext executable
	Runner         providers.Runner // Optional (tests)
	Workers        int              // Concurrent pages (default NumCPU)
	ChunkThreshold int64            // Files above this size are chunked
	ChunkPages     int              // Pages per chunk, clamped to 3-5
	YieldDelay     time.Duration    // Pause between chunks
	Logger         *slog.Logger
}

// PDFBackend extracts the text layer of each page with pdftotext.
type PDFBackend struct {
	binary         string
	runner         providers.Runner
	checkBinary    bool
	workers        int
	chunkThreshold int64
	chunkPages     int
	yieldDelay     time.Duration
	logger         *slog.Logger
}

// NewPDFBackend creates the PDF backend.
func NewPDFBackend(cfg PDFConfig) *PDFBackend {
	if cfg.Binary == "" {
		cfg.Binary = "pdftotext"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	checkBinary := cfg.Runner == nil
	if cfg.Runner == nil {
		cfg.Runner = providers.NewExecRunner(cfg.Logger)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = DefaultChunkThreshold
	}
	if cfg.ChunkPages == 0 {
		cfg.ChunkPages = DefaultChunkPages
	}
	cfg.ChunkPages = min(max(cfg.ChunkPages, minChunkPages), maxChunkPages)
	if cfg.YieldDelay < 0 {
		cfg.YieldDelay = 0
	}
	return &PDFBackend{
		binary:         cfg.Binary,
		runner:         cfg.Runner,
		checkBinary:    checkBinary,
		workers:        cfg.Workers,
		chunkThreshold: cfg.ChunkThreshold,
		chunkPages:     cfg.ChunkPages,
		yieldDelay:     cfg.YieldDelay,
		logger:         cfg.Logger,
	}
}

func (b *PDFBackend) Kind() Kind { return KindPDF }

// Ready checks that pdftotext is installed.
func (b *PDFBackend) Ready() error {
	if b.checkBinary && !providers.LookPath(b.binary) {
		return fmt.Errorf("%s not found on PATH (install poppler-utils)", b.binary)
	}
	return nil
}

// ChunkPages returns the effective pages per chunk.
func (b *PDFBackend) ChunkPages() int { return b.chunkPages }

// Extract counts pages with pdfcpu, then extracts every page. Files above
// the chunk threshold are processed a few pages at a time with a pause
// between chunks.
func (b *PDFBackend) Extract(ctx context.Context, in RawInput, rep Reporter) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	total, err := api.PageCount(bytes.NewReader(in.Data), conf)
	if err != nil {
		e := recipe.Unsupported(recipe.SourcePDF, "unreadable or damaged PDF",
			"Re-export the PDF, or upload a photo of the recipe instead.")
		e.Cause = err
		return "", e
	}
	if total == 0 {
		return "", recipe.Empty(recipe.SourcePDF, "no pages")
	}

	f, err := os.CreateTemp("", "larder-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp PDF: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(in.Data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp PDF: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp PDF: %w", err)
	}

	pages := make([]string, total)
	done := 0
	onPage := func() {
		done++
		rep.Progress(0.1 + 0.8*float64(done)/float64(total))
	}
	rep.Progress(0.1)

	chunked := in.Size() > b.chunkThreshold
	step := total
	if chunked {
		step = b.chunkPages
	}
	b.logger.Debug("extracting PDF", "pages", total, "chunked", chunked, "chunk_pages", step, "bytes", in.Size())

	for first := 1; first <= total; first += step {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		last := min(first+step-1, total)
		if err := b.extractRange(ctx, path, first, last, pages, onPage); err != nil {
			return "", err
		}
		if chunked && last < total && b.yieldDelay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(b.yieldDelay):
			}
		}
	}

	parts := make([]string, 0, total)
	for _, p := range pages {
		if p = strings.TrimSpace(strings.ReplaceAll(p, "\f", "")); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", recipe.Empty(recipe.SourcePDF, "no text layer")
	}
	return strings.Join(parts, "\n\n"), nil
}

// extractRange extracts pages [first, last] concurrently and waits for all
// of them. onPage runs on the calling goroutine once per finished page.
func (b *PDFBackend) extractRange(ctx context.Context, path string, first, last int, pages []string, onPage func()) error {
	type result struct {
		page int
		text string
		err  error
	}

	n := last - first + 1
	results := make(chan result, n)
	sem := make(chan struct{}, b.workers)

	go func() {
		for page := first; page <= last; page++ {
			sem <- struct{}{}
			go func(page int) {
				defer func() { <-sem }()
				if err := ctx.Err(); err != nil {
					results <- result{page: page, err: err}
					return
				}
				text, err := b.pageText(ctx, path, page)
				results <- result{page: page, text: text, err: err}
			}(page)
		}
	}()

	var firstErr error
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		pages[r.page-1] = r.text
		onPage()
	}
	return firstErr
}

// pageText runs "pdftotext -f N -l N -enc UTF-8 <file> -".
func (b *PDFBackend) pageText(ctx context.Context, path string, page int) (string, error) {
	n := strconv.Itoa(page)
	out, errb, err := b.runner.Run(ctx, b.binary, "-f", n, "-l", n, "-enc", "UTF-8", path, "-")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("pdftotext page %d: %w (%s)", page, err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}
