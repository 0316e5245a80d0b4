package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/nanoplex/bundle"
	"github.com/pithecene-io/nanoplex/convert"
	"github.com/pithecene-io/nanoplex/toolchain"
)

// Error kinds. A *PipelineError matches its kind with errors.Is.
var (
	// ErrConfiguration indicates invalid options or missing inputs/tools.
	ErrConfiguration = errors.New("configuration error")
	// ErrCompatibility indicates the installed demultiplexer lacks a
	// required flag.
	ErrCompatibility = errors.New("compatibility error")
	// ErrSubprocess indicates a required external tool failed.
	ErrSubprocess = errors.New("subprocess error")
	// ErrOutputCollision indicates the output root holds a previous run.
	ErrOutputCollision = errors.New("output collision")
	// ErrCanceled indicates the run was interrupted.
	ErrCanceled = errors.New("run canceled")
)

// PipelineError is a fatal run error classified by kind.
type PipelineError struct {
	// Kind is one of the Err* kind sentinels.
	Kind error
	// Op names the step that failed.
	Op string
	// Err is the underlying error.
	Err error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the error's kind.
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

func newError(kind error, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// classify wraps err with the kind implied by its cause.
// Already classified errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrCanceled, op, err)
	case errors.Is(err, toolchain.ErrIncompatible):
		return newError(ErrCompatibility, op, err)
	case errors.Is(err, convert.ErrConverterUnavailable),
		errors.Is(err, bundle.ErrNotFound),
		errors.Is(err, bundle.ErrUnsupportedSource):
		return newError(ErrConfiguration, op, err)
	default:
		return newError(ErrSubprocess, op, err)
	}
}

// KindName returns a short name for err's kind, or "internal" when err is
// not a *PipelineError.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrCompatibility):
		return "compatibility"
	case errors.Is(err, ErrSubprocess):
		return "subprocess"
	case errors.Is(err, ErrOutputCollision):
		return "output_collision"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "internal"
	}
}
