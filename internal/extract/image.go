package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
)

// minImageChars is the least non-space output accepted from OCR.
const minImageChars = 10

// OCR progress occupies this band of the backend's own 0-1 scale.
const (
	ocrBandStart = 0.1
	ocrBandEnd   = 0.9
)

// ImageBackend runs OCR through a named provider from the registry.
type ImageBackend struct {
	registry *providers.Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	provider string
	limiters map[string]*providers.RateLimiter
}

// NewImageBackend creates the image backend using the named OCR provider.
func NewImageBackend(registry *providers.Registry, provider string, logger *slog.Logger) *ImageBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageBackend{
		registry: registry,
		provider: provider,
		logger:   logger,
		limiters: make(map[string]*providers.RateLimiter),
	}
}

func (b *ImageBackend) Kind() Kind { return KindImage }

// Provider returns the configured OCR provider name.
func (b *ImageBackend) Provider() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.provider
}

// SetProvider switches the OCR provider for new requests.
func (b *ImageBackend) SetProvider(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.provider = name
}

// Ready checks that the provider is registered.
func (b *ImageBackend) Ready() error {
	name := b.Provider()
	if !b.registry.HasOCR(name) {
		return fmt.Errorf("OCR provider %q is not configured", name)
	}
	return nil
}

// limiter returns the shared rate limiter for a provider.
func (b *ImageBackend) limiter(p providers.OCRProvider) *providers.RateLimiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	rl, ok := b.limiters[p.Name()]
	if !ok {
		rl = providers.NewRateLimiter(p.RequestsPerSecond())
		b.limiters[p.Name()] = rl
	}
	return rl
}

// Extract OCRs the image with retries. Rate-limit responses drain the
// limiter so the next attempt waits out Retry-After.
func (b *ImageBackend) Extract(ctx context.Context, in RawInput, rep Reporter) (string, error) {
	name := b.Provider()
	provider, err := b.registry.GetOCR(name)
	if err != nil {
		return "", err
	}
	rl := b.limiter(provider)
	streaming, _ := provider.(providers.ProgressOCR)

	rep.Progress(ocrBandStart)
	band := func(f float64) { rep.Progress(ocrBandStart + (ocrBandEnd-ocrBandStart)*f) }

	var result *providers.OCRResult
	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			if err := rl.Wait(ctx); err != nil {
				return err
			}
			var res *providers.OCRResult
			var err error
			if streaming != nil {
				res, err = streaming.ProcessImageWithProgress(ctx, in.Data, band)
			} else {
				res, err = provider.ProcessImage(ctx, in.Data)
			}
			if err != nil {
				var rle *providers.RateLimitError
				if errors.As(err, &rle) {
					rl.Record429(rle.RetryAfter)
				}
				return err
			}
			if res == nil || !res.Success {
				msg := "OCR returned no result"
				if res != nil && res.ErrorMessage != "" {
					msg = res.ErrorMessage
				}
				return errors.New(msg)
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(provider.MaxRetries()+1)),
		retry.Delay(provider.RetryDelayBase()),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableOCR),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Warn("OCR attempt failed, retrying", "provider", name, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("OCR with %s failed after %d attempts: %w", name, attempts, err)
	}
	band(1)

	text := strings.TrimSpace(result.Text)
	if countNonSpace(text) < minImageChars {
		return "", recipe.Empty(recipe.SourceImage, "insufficient text")
	}
	b.logger.Debug("OCR complete", "provider", name, "chars", len(text), "attempts", attempts, "duration_ms", result.ExecutionTime.Milliseconds())
	return text, nil
}

// retryableOCR skips retries for cancellation and client errors.
func retryableOCR(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *providers.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
