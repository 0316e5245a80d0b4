package toolchain

import (
	"context"

	"github.com/pithecene-io/nanoplex/metrics"
)

// InstrumentedRunner wraps a Runner and records per-tool invocation and
// failure counts. Launch errors and non-zero exits both count as failures.
type InstrumentedRunner struct {
	inner     Runner
	collector *metrics.Collector
}

// NewInstrumentedRunner wraps a runner with metrics instrumentation.
func NewInstrumentedRunner(inner Runner, collector *metrics.Collector) *InstrumentedRunner {
	return &InstrumentedRunner{inner: inner, collector: collector}
}

// Run delegates to the inner runner and records the outcome.
func (r *InstrumentedRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	r.collector.IncToolInvocation(inv.Name)
	res, err := r.inner.Run(ctx, inv)
	if err != nil || res.ExitCode != 0 {
		r.collector.IncToolFailure(inv.Name)
	}
	return res, err
}

// Verify InstrumentedRunner implements Runner.
var _ Runner = (*InstrumentedRunner)(nil)
