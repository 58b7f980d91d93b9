package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/lorenzotomasdiez/consilium/internal/llm"
)

// Kind classifies a call failure. Every failure is attributable to one
// pipeline run; none aborts a batch.
type Kind string

const (
	// KindTimeout: the call exceeded its deadline. Transient.
	KindTimeout Kind = "timeout"
	// KindBackend: the backend refused or failed the call. Transient
	// for rate limiting and 5xx, permanent otherwise.
	KindBackend Kind = "backend"
	// KindParse: text was received but the required structured fields
	// could not be extracted. Never retried by the dispatcher; callers
	// issue a repair prompt.
	KindParse Kind = "parse"
	// KindHallucination: a specialty name outside the catalog. Never
	// forwarded; callers substitute the fixed default.
	KindHallucination Kind = "specialty-hallucination"
	// KindDebateIncomplete: a debate round failed irrecoverably and the
	// whole debate run is abandoned.
	KindDebateIncomplete Kind = "debate-incomplete"
)

// Failure is the dispatcher's error type.
type Failure struct {
	Kind      Kind
	Stage     string
	Transient bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("dispatch: %s failure at %s: %v", f.Kind, f.Stage, f.Err)
	}
	return fmt.Sprintf("dispatch: %s failure at %s", f.Kind, f.Stage)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a non-transient failure for the given stage.
func NewFailure(kind Kind, stage string, err error) *Failure {
	return &Failure{Kind: kind, Stage: stage, Err: err}
}

// FailureKind extracts the Kind from err, or "" if err is not a Failure.
func FailureKind(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// classify maps a raw backend error onto the taxonomy.
func classify(stage string, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindTimeout, Stage: stage, Transient: true, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Failure{Kind: KindTimeout, Stage: stage, Transient: true, Err: err}
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return &Failure{Kind: KindBackend, Stage: stage, Transient: se.Transient(), Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Kind: KindBackend, Stage: stage, Err: err}
	}
	// Connection-level errors (refused, reset) are worth retrying.
	return &Failure{Kind: KindBackend, Stage: stage, Transient: true, Err: err}
}
