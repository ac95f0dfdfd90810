package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/recovery"
)

// minGarbledLetters is the least readable content worth sending to recovery
// when a text upload was rejected as binary.
const minGarbledLetters = 20

// Outcome is the result of Process. Error is set when the request ended
// before conversion; otherwise Result holds the conversion result.
type Outcome struct {
	ID           string                   `json:"id"`
	Kind         extract.Kind             `json:"kind,omitempty"`
	Fixes        []string                 `json:"fixes,omitempty"`
	Draft        *recipe.Draft            `json:"draft,omitempty"`
	Result       *recipe.ConversionResult `json:"result,omitempty"`
	Recovered    bool                     `json:"recovered"`
	RecoveryKind recovery.FailureKind     `json:"recovery_kind,omitempty"`
	Error        *recipe.ErrorInfo        `json:"error,omitempty"`
	RecipeID     string                   `json:"recipe_id,omitempty"`
	Duration     time.Duration            `json:"duration"`
}

// Succeeded reports whether the request produced a converted recipe.
func (o Outcome) Succeeded() bool { return o.Result != nil && o.Result.Success }

// Failure returns the error that ended the request, if any.
func (o Outcome) Failure() *recipe.ErrorInfo {
	if o.Error != nil {
		return o.Error
	}
	if o.Result != nil {
		return o.Result.Error
	}
	return nil
}

// Process runs the whole pipeline on one input. A recoverable failure sends
// the best available text through the recovery stage once and converts the
// recovered draft. Cancelled, oversized and timed-out requests end without
// recovery.
func (p *Pipeline) Process(ctx context.Context, in extract.RawInput, fn extract.ProgressFunc, system recipe.UnitSystem) Outcome {
	start := time.Now()
	out := Outcome{ID: uuid.NewString(), Kind: extract.ResolveKind(in)}
	defer p.recovery.Forget(out.ID)
	logger := p.logger.With("request_id", out.ID)

	finish := func() Outcome {
		out.Duration = time.Since(start)
		attrs := []any{"kind", out.Kind, "success", out.Succeeded(), "recovered", out.Recovered, "duration_ms", out.Duration.Milliseconds()}
		if f := out.Failure(); f != nil {
			attrs = append(attrs, "error_kind", f.Kind)
		}
		logger.Info("processed recipe", attrs...)
		return out
	}

	var text string
	switch r := p.Extract(ctx, in, fn).(type) {
	case extract.Text:
		text = r.Content
		out.Kind = r.Kind
	case *extract.Failure:
		garbled, ok := garbledText(in, r.Err)
		if !ok {
			out.Error = r.Err.Info()
			return finish()
		}
		p.recoverAndConvert(ctx, &out, garbled, r.Err, system)
		return finish()
	default:
		out.Error = recipe.Unknown(recipe.SourceRecovery, nil).Info()
		return finish()
	}

	d, fixes := p.normalizeAndStructure(text)
	out.Fixes = fixes.List()
	res := p.ClassifyAndConvert(ctx, d, system)
	if res.Success || !res.Error.Kind.Recoverable() {
		out.Draft = &d
		out.Result = &res
		return finish()
	}

	logger.Info("conversion failed, attempting recovery", "error_kind", res.Error.Kind, "message", res.Error.Message)
	p.recoverAndConvert(ctx, &out, text, fromInfo(res.Error), system)
	return finish()
}

// recoverAndConvert runs the single recovery attempt for out and converts the
// recovered draft. A parsing failure on OCR or PDF text uses the tweaks for
// that source.
func (p *Pipeline) recoverAndConvert(ctx context.Context, out *Outcome, text string, failure *recipe.Error, system recipe.UnitSystem) {
	kind := recovery.KindFor(failure)
	if kind == recovery.FailureParsing {
		switch out.Kind {
		case extract.KindPDF:
			kind = recovery.FailurePDF
		case extract.KindImage:
			kind = recovery.FailureImage
		}
	}

	rec := p.recovery.Recover(ctx, recovery.Request{ID: out.ID, Text: text, Failure: failure, Kind: kind})
	out.Recovered = true
	out.RecoveryKind = rec.Kind
	d := rec.Draft
	out.Draft = &d
	res := p.ClassifyAndConvert(ctx, d, system)
	out.Result = &res
}

func fromInfo(info *recipe.ErrorInfo) *recipe.Error {
	return &recipe.Error{Kind: info.Kind, Source: info.Source, Message: info.Message, Remedy: info.Remedy}
}

// garbledText returns the readable part of a text upload that was rejected as
// binary. Word-processor documents and other failures are not recovered.
func garbledText(in extract.RawInput, err *recipe.Error) (string, bool) {
	if err == nil || err.Kind != recipe.KindUnsupported || err.Source != recipe.SourceText {
		return "", false
	}
	if extract.IsWordProcessor(in) {
		return "", false
	}
	decoded, derr := extract.DecodeText(in.Data)
	if derr != nil {
		return "", false
	}

	var b strings.Builder
	letters, visible := 0, 0
	for _, r := range decoded {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == unicode.ReplacementChar || !unicode.IsPrint(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
			if !unicode.IsSpace(r) {
				visible++
				if unicode.IsLetter(r) {
					letters++
				}
			}
		}
	}
	if letters < minGarbledLetters || letters*2 < visible {
		return "", false
	}
	return b.String(), true
}
