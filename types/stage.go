package types

import (
	"fmt"
	"sync"
)

// Stage is a pipeline progression point. Each stage's output is a
// precondition for the next; stages are never re-entered.
type Stage string

const (
	StagePending            Stage = "pending"
	StageValidated          Stage = "validated"
	StageBundleResolved     Stage = "bundle_resolved"
	StageCapabilityResolved Stage = "capability_resolved"
	StageBasecallDone       Stage = "basecall_done"
	StageBasecallDemuxFused Stage = "basecall_demux_fused"
	StageConverted          Stage = "converted"
	StageTrimmed            Stage = "trimmed"
	StageReported           Stage = "reported"
	StageComplete           Stage = "complete"
)

// transitions lists the legal successors of every stage.
var transitions = map[Stage][]Stage{
	StagePending:            {StageValidated},
	StageValidated:          {StageBundleResolved},
	StageBundleResolved:     {StageCapabilityResolved},
	StageCapabilityResolved: {StageBasecallDone, StageBasecallDemuxFused},
	StageBasecallDone:       {StageConverted},
	StageBasecallDemuxFused: {StageConverted},
	StageConverted:          {StageTrimmed, StageReported},
	StageTrimmed:            {StageReported},
	StageReported:           {StageComplete},
}

// CanTransition reports whether next may follow from.
func CanTransition(from, next Stage) bool {
	for _, s := range transitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Progress is the explicit stage descriptor threaded through a run.
// Safe for concurrent reads.
type Progress struct {
	mu      sync.Mutex
	current Stage
	history []Stage
}

// NewProgress returns a descriptor at StagePending.
func NewProgress() *Progress {
	return &Progress{current: StagePending, history: []Stage{StagePending}}
}

// Advance moves to next, rejecting transitions that skip or repeat stages.
func (p *Progress) Advance(next Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !CanTransition(p.current, next) {
		return fmt.Errorf("illegal stage transition %s -> %s", p.current, next)
	}
	p.current = next
	p.history = append(p.history, next)
	return nil
}

// Current returns the current stage.
func (p *Progress) Current() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// History returns a copy of the stages reached, in order.
func (p *Progress) History() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stage, len(p.history))
	copy(out, p.history)
	return out
}
