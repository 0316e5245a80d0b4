package toolchain

import (
	"context"
	"slices"
	"sync"
)

// StubRunner is a Runner for tests. It records every invocation and
// delegates to Handler, which may write to inv.Stdout or create files to
// mimic a tool. A nil Handler succeeds with exit code 0.
type StubRunner struct {
	Handler func(ctx context.Context, inv Invocation) (*Result, error)

	mu    sync.Mutex
	calls []Invocation
}

// Run implements Runner.
func (s *StubRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	s.mu.Lock()
	rec := inv
	rec.Args = slices.Clone(inv.Args)
	s.calls = append(s.calls, rec)
	s.mu.Unlock()

	if s.Handler == nil {
		return &Result{}, nil
	}
	return s.Handler(ctx, inv)
}

// Calls returns a copy of the recorded invocations.
func (s *StubRunner) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsNamed returns the recorded invocations with the given logical name.
func (s *StubRunner) CallsNamed(name string) []Invocation {
	var out []Invocation
	for _, c := range s.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Verify StubRunner implements Runner.
var _ Runner = (*StubRunner)(nil)
