package extract

import (
	"time"

	"github.com/jackzampolin/larder/internal/recipe"
)

// Result is the outcome of an extraction: exactly one of Text, *Task or
// *Failure.
type Result interface {
	isResult()
}

// Text is a successful extraction.
type Text struct {
	Content  string        `json:"text"`
	Kind     Kind          `json:"kind"`
	Duration time.Duration `json:"duration"`
}

func (Text) isResult() {}

// Failure is a typed extraction failure.
type Failure struct {
	Err *recipe.Error
}

func (*Failure) isResult() {}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

func fail(err *recipe.Error) *Failure { return &Failure{Err: err} }
