package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"
)

const (
	TesseractName = "tesseract"

	tesseractDefaultBinary = "tesseract"
	tesseractDefaultLang   = "eng"
)

// TesseractConfig holds configuration for the local tesseract provider.
type TesseractConfig struct {
	Binary      string // Path to the tesseract executable
	Lang        string // OCR language, e.g. "eng"
	TessdataDir string // Optional --tessdata-dir
	PSM         int    // Page segmentation mode (0 = tesseract default)
	Runner      Runner // Optional (tests)
	Logger      *slog.Logger
}

// TesseractClient implements OCRProvider by running the tesseract CLI.
type TesseractClient struct {
	binary      string
	lang        string
	tessdataDir string
	psm         int
	runner      Runner
	logger      *slog.Logger
}

// NewTesseractClient creates a tesseract provider.
func NewTesseractClient(cfg TesseractConfig) *TesseractClient {
	if cfg.Binary == "" {
		cfg.Binary = tesseractDefaultBinary
	}
	if cfg.Lang == "" {
		cfg.Lang = tesseractDefaultLang
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = NewExecRunner(cfg.Logger)
	}
	return &TesseractClient{
		binary:      cfg.Binary,
		lang:        cfg.Lang,
		tessdataDir: cfg.TessdataDir,
		psm:         cfg.PSM,
		runner:      cfg.Runner,
		logger:      cfg.Logger,
	}
}

// Name returns the provider identifier.
func (c *TesseractClient) Name() string { return TesseractName }

// RequestsPerSecond bounds concurrent local OCR processes.
func (c *TesseractClient) RequestsPerSecond() float64 { return 4 }

// MaxRetries returns the maximum retry attempts. Local failures are
// deterministic, so one retry is enough.
func (c *TesseractClient) MaxRetries() int { return 1 }

// RetryDelayBase returns the base delay for exponential backoff.
func (c *TesseractClient) RetryDelayBase() time.Duration { return 500 * time.Millisecond }

// reBoxNoise strips runs of box-drawing and pipe characters tesseract emits
// for table borders.
var reBoxNoise = regexp.MustCompile(`[|¦│┃]{2,}`)

// ProcessImage writes the image to a temp file and runs
// "tesseract <file> stdout -l <lang>".
func (c *TesseractClient) ProcessImage(ctx context.Context, image []byte) (*OCRResult, error) {
	start := time.Now()

	f, err := os.CreateTemp("", "larder-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove temp image", "path", path, "error", err)
		}
	}()
	if _, err := f.Write(image); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp image: %w", err)
	}

	args := []string{path, "stdout", "-l", c.lang}
	if c.psm > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", c.psm))
	}
	if c.tessdataDir != "" {
		args = append(args, "--tessdata-dir", c.tessdataDir)
	}

	out, errb, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &OCRResult{
			Success:       false,
			ErrorMessage:  truncate(string(errb), 512),
			ExecutionTime: time.Since(start),
		}, fmt.Errorf("tesseract: %w", err)
	}

	return &OCRResult{
		Success:       true,
		Text:          reBoxNoise.ReplaceAllString(string(out), ""),
		Metadata:      map[string]any{"lang": c.lang, "image_bytes": len(image)},
		ExecutionTime: time.Since(start),
	}, nil
}

var _ OCRProvider = (*TesseractClient)(nil)
