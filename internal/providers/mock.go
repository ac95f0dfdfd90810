package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ResponseJSON json.RawMessage

	mu       sync.Mutex
	requests []*ChatRequest

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat records the request and returns the configured response. With a
// ResponseFormat set, ResponseJSON is parsed and validated like a real client
// would.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
	}

	if c.ShouldFail {
		result.ErrorMessage = "mock client configured to fail"
		return result, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		return result, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		result.ErrorMessage = ctx.Err().Error()
		return result, ctx.Err()
	}

	result.Content = c.ResponseText
	if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
		result.Content = string(c.ResponseJSON)
		parsed, err := ParseStructuredJSON(result.Content)
		if err == nil {
			err = ValidateStructuredJSON(req.ResponseFormat.JSONSchema, parsed)
		}
		if err != nil {
			result.ErrorMessage = err.Error()
			return result, err
		}
		result.ParsedJSON = parsed
	}

	for _, m := range req.Messages {
		result.PromptTokens += len(m.Content) / 4
	}
	result.CompletionTokens = len(result.Content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.Success = true
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns the recorded requests.
func (c *MockClient) Requests() []*ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ChatRequest(nil), c.requests...)
}

var _ LLMClient = (*MockClient)(nil)

// MockOCRProvider is an OCRProvider for testing. It reports progress in
// Steps equal increments, sleeping StepDelay between them.
type MockOCRProvider struct {
	ProviderName string
	StepDelay    time.Duration
	Steps        int
	ShouldFail   bool
	FailTimes    int   // Fail the first N requests, then succeed
	FailErr      error // Error returned on failure (default: generic)
	ResponseText string
	RPS          float64
	Retries      int
	RetryDelay   time.Duration

	// Block, when set, holds every request until it is closed or ctx ends.
	Block chan struct{}

	requestCount atomic.Int64
}

// NewMockOCRProvider creates a new mock OCR provider.
func NewMockOCRProvider() *MockOCRProvider {
	return &MockOCRProvider{
		ProviderName: "mock-ocr",
		StepDelay:    time.Millisecond,
		Steps:        4,
		ResponseText: "mock OCR text",
		RPS:          100,
		Retries:      3,
		RetryDelay:   time.Millisecond,
	}
}

// Name returns the provider identifier.
func (p *MockOCRProvider) Name() string {
	return p.ProviderName
}

// RequestsPerSecond returns the rate limit.
func (p *MockOCRProvider) RequestsPerSecond() float64 {
	return p.RPS
}

// MaxRetries returns the max retry count.
func (p *MockOCRProvider) MaxRetries() int {
	return p.Retries
}

// RetryDelayBase returns the base retry delay.
func (p *MockOCRProvider) RetryDelayBase() time.Duration {
	return p.RetryDelay
}

// ProcessImage extracts text from an image.
func (p *MockOCRProvider) ProcessImage(ctx context.Context, image []byte) (*OCRResult, error) {
	return p.ProcessImageWithProgress(ctx, image, nil)
}

// ProcessImageWithProgress is ProcessImage with progress reports.
func (p *MockOCRProvider) ProcessImageWithProgress(ctx context.Context, image []byte, report func(float64)) (*OCRResult, error) {
	start := time.Now()
	count := p.requestCount.Add(1)

	if p.ShouldFail || (p.FailTimes > 0 && int(count) <= p.FailTimes) {
		err := p.FailErr
		if err == nil {
			err = fmt.Errorf("mock OCR provider configured to fail")
		}
		return &OCRResult{ErrorMessage: err.Error(), ExecutionTime: time.Since(start)}, err
	}

	steps := p.Steps
	if steps <= 0 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		select {
		case <-time.After(p.StepDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if report != nil {
			report(float64(i) / float64(steps))
		}
	}
	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &OCRResult{
		Success:       true,
		Text:          p.ResponseText,
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"provider":    p.ProviderName,
			"image_bytes": len(image),
		},
	}, nil
}

// RequestCount returns the number of requests made.
func (p *MockOCRProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

var _ ProgressOCR = (*MockOCRProvider)(nil)
