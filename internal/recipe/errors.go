package recipe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies pipeline failures. Each kind maps to one message template
// and one remedy.
type Kind string

const (
	KindOversized   Kind = "oversized-input"
	KindUnsupported Kind = "unsupported-format"
	KindTimeout     Kind = "timeout"
	KindCancelled   Kind = "cancelled"
	KindEmpty       Kind = "empty-result"
	KindParsing     Kind = "parsing-error"
	KindConversion  Kind = "conversion-error"
	KindUnknown     Kind = "unknown"
)

// Recoverable reports whether a failure of this kind may go through the
// recovery stage (once).
func (k Kind) Recoverable() bool {
	switch k {
	case KindParsing, KindConversion, KindUnsupported:
		return true
	}
	return false
}

// Sources name the stage that produced an error.
const (
	SourceImage     = "image"
	SourcePDF       = "pdf"
	SourceText      = "text"
	SourceStructure = "structure"
	SourceClassify  = "classify"
	SourceConvert   = "convert"
	SourceRecovery  = "recovery"
)

// Error is the typed failure surfaced at the orchestrator and pipeline
// boundaries. Raw backend errors are kept in Cause.
type Error struct {
	Kind    Kind
	Source  string
	Message string
	Remedy  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinel errors by kind, so errors.Is(err, ErrTimeout) works for
// any timeout regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Info returns the serializable form of the error.
func (e *Error) Info() *ErrorInfo {
	if e == nil {
		return nil
	}
	return &ErrorInfo{Kind: e.Kind, Source: e.Source, Message: e.Error(), Remedy: e.Remedy}
}

// ErrorInfo is the JSON shape of an Error.
type ErrorInfo struct {
	Kind    Kind   `json:"kind"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
	Remedy  string `json:"remedy,omitempty"`
}

// Sentinels for errors.Is.
var (
	ErrOversized   = &Error{Kind: KindOversized}
	ErrUnsupported = &Error{Kind: KindUnsupported}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrCancelled   = &Error{Kind: KindCancelled}
	ErrEmpty       = &Error{Kind: KindEmpty}
	ErrParsing     = &Error{Kind: KindParsing}
	ErrConversion  = &Error{Kind: KindConversion}
	ErrUnknown     = &Error{Kind: KindUnknown}
)

// Oversized reports an input above its size limit. A size of 0 means the
// real size is unknown.
func Oversized(source string, size, limit int64) *Error {
	remedy := "Use a smaller file."
	switch source {
	case SourceImage:
		remedy = "Compress or resize the photo and try again."
	case SourcePDF:
		remedy = "Split the PDF into smaller parts or export only the recipe pages."
	case SourceText:
		remedy = "Paste only the recipe text."
	}
	msg := fmt.Sprintf("%s is too large (%s, limit %s)", describeSource(source), FormatBytes(size), FormatBytes(limit))
	if size <= 0 {
		msg = fmt.Sprintf("%s is too large (over the %s limit)", describeSource(source), FormatBytes(limit))
	}
	return &Error{
		Kind:    KindOversized,
		Source:  source,
		Message: msg,
		Remedy:  remedy,
	}
}

// Unsupported reports an input format the pipeline cannot read.
func Unsupported(source, format, remedy string) *Error {
	if remedy == "" {
		remedy = "Paste the recipe text manually or export it as a PDF."
	}
	return &Error{
		Kind:    KindUnsupported,
		Source:  source,
		Message: fmt.Sprintf("This file format is not supported: %s", format),
		Remedy:  remedy,
	}
}

// Timeout reports a backend that did not finish within its budget.
func Timeout(source string, after time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Source:  source,
		Message: fmt.Sprintf("Processing took too long (over %s)", after.Round(time.Second)),
		Remedy:  "Try a smaller file, or retry.",
	}
}

// Cancelled reports a request cancelled by the caller.
func Cancelled(source string) *Error {
	return &Error{Kind: KindCancelled, Source: source, Message: "Processing was cancelled"}
}

// Empty reports an extraction that produced no usable text.
func Empty(source, detail string) *Error {
	remedy := "Try a different file."
	switch source {
	case SourcePDF:
		remedy = "This looks like a scanned PDF. Take a photo of the page or upload it as an image instead."
	case SourceImage:
		remedy = "Take a clearer, well-lit photo with the text filling the frame."
	case SourceText:
		remedy = "Paste the recipe text manually."
	}
	msg := fmt.Sprintf("No text could be extracted from this %s", describeSource(source))
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &Error{Kind: KindEmpty, Source: source, Message: msg, Remedy: remedy}
}

// ParsingFailed reports text that could not be structured into a recipe.
func ParsingFailed(source string, cause error) *Error {
	return &Error{
		Kind:    KindParsing,
		Source:  source,
		Message: "Could not understand the recipe structure",
		Remedy:  `Add "Ingredients:" and "Instructions:" headings and try again.`,
		Cause:   cause,
	}
}

// ConversionFailed reports a draft that could not be converted.
func ConversionFailed(detail string, cause error) *Error {
	return &Error{
		Kind:    KindConversion,
		Source:  SourceConvert,
		Message: fmt.Sprintf("Could not convert the recipe: %s", detail),
		Remedy:  "Check that ingredient quantities and units are present.",
		Cause:   cause,
	}
}

// Unknown wraps an unexpected failure.
func Unknown(source string, cause error) *Error {
	return &Error{
		Kind:    KindUnknown,
		Source:  source,
		Message: "Something went wrong",
		Remedy:  "Please try again.",
		Cause:   cause,
	}
}

// AsError converts any error into a typed *Error. Context errors map to
// cancelled and timeout; everything else that is not already typed is unknown.
func AsError(source string, err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled(source)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := Timeout(source, 0)
		e.Message = "Processing took too long"
		e.Cause = err
		return e
	}
	return Unknown(source, err)
}

func describeSource(source string) string {
	switch source {
	case SourceImage:
		return "image"
	case SourcePDF:
		return "PDF"
	case SourceText:
		return "text file"
	default:
		return "input"
	}
}

// FormatBytes renders a byte count in binary megabytes or kilobytes.
func FormatBytes(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
	)
	switch {
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
