// Package extract sends an enhanced table image to a vision-language model
// and parses the transcribed rows.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// Sentinels for errors.Is on a Failure.
var (
	ErrTransport = errors.New("extract: transport failure")
	ErrParse     = errors.New("extract: parse failure")
)

// FailureKind classifies why an extraction call produced no rows.
type FailureKind string

const (
	FailureTransport   FailureKind = "transport"   // service or network error
	FailureTimeout     FailureKind = "timeout"     // per-call deadline exceeded
	FailureUnavailable FailureKind = "unavailable" // circuit open, call not attempted
	FailureParse       FailureKind = "parse"       // response was not a row list
	FailureInput       FailureKind = "input"       // image could not be read
)

// Failure is the typed error value carried in a Result.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extract: %s: %s", f.Kind, f.Message)
}

// Unwrap maps parse failures to ErrParse and everything else to ErrTransport,
// alongside the underlying cause.
func (f *Failure) Unwrap() []error {
	sentinel := ErrTransport
	if f.Kind == FailureParse {
		sentinel = ErrParse
	}
	if f.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, f.Err}
}

// Result is the outcome of one extraction call: rows, or a Failure.
type Result struct {
	Rows    []model.Row
	Failure *Failure
}

// OK reports whether the call produced rows.
func (r Result) OK() bool { return r.Failure == nil }

func failed(kind FailureKind, err error) Result {
	return Result{Failure: &Failure{Kind: kind, Message: err.Error(), Err: err}}
}

// Client performs a single extraction call. Implementations never return
// Go errors or panic for service problems; they report them in Result.
type Client interface {
	Extract(ctx context.Context, imagePath, modelID string) Result
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, imagePath, modelID string) Result

// Extract calls f.
func (f ClientFunc) Extract(ctx context.Context, imagePath, modelID string) Result {
	return f(ctx, imagePath, modelID)
}
