// Package metrics provides per-run pipeline metrics.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Counters are informational only; read counts
// in the report are never derived from them.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the run's counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// External tools, keyed by logical tool name (basecaller, samtools, ...)
	ToolInvocations map[string]int64 `json:"tool_invocations"`
	ToolFailures    map[string]int64 `json:"tool_failures"`

	// Alignment units
	UnitsProduced  int64 `json:"units_produced"`
	UnitsDropped   int64 `json:"units_dropped"`
	UnitsConverted int64 `json:"units_converted"`

	// Conversion fallbacks
	FallbackConversions int64 `json:"fallback_conversions"`
	FallbackFailures    int64 `json:"fallback_failures"`

	// Reporting
	GroupsCounted      int64 `json:"groups_counted"`
	BestEffortFailures int64 `json:"best_effort_failures"`
	RecordsPublished   int64 `json:"records_published"`

	// Dimensions (informational, set at construction)
	Mode  string `json:"mode"`
	Model string `json:"model"`
	RunID string `json:"run_id"`
	JobID string `json:"job_id,omitempty"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	toolInvocations map[string]int64
	toolFailures    map[string]int64

	unitsProduced  int64
	unitsDropped   int64
	unitsConverted int64

	fallbackConversions int64
	fallbackFailures    int64

	groupsCounted      int64
	bestEffortFailures int64
	recordsPublished   int64

	mode  string
	model string
	runID string
	jobID string
}

// NewCollector creates a Collector with dimension labels.
// jobID is optional.
func NewCollector(mode, model, runID, jobID string) *Collector {
	return &Collector{
		toolInvocations: make(map[string]int64),
		toolFailures:    make(map[string]int64),
		mode:            mode,
		model:           model,
		runID:           runID,
		jobID:           jobID,
	}
}

func (c *Collector) add(p *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*p += n
	c.mu.Unlock()
}

// --- External tools ---

// IncToolInvocation records one launch of the named tool.
func (c *Collector) IncToolInvocation(tool string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolInvocations[tool]++
	c.mu.Unlock()
}

// IncToolFailure records a non-zero exit or launch failure of the named tool.
func (c *Collector) IncToolFailure(tool string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolFailures[tool]++
	c.mu.Unlock()
}

// --- Units ---

// AddUnitsProduced records units emitted by the basecaller or demuxer.
func (c *Collector) AddUnitsProduced(n int) {
	if c == nil {
		return
	}
	c.add(&c.unitsProduced, int64(n))
}

// AddUnitsDropped records units discarded by the classification filter.
func (c *Collector) AddUnitsDropped(n int) {
	if c == nil {
		return
	}
	c.add(&c.unitsDropped, int64(n))
}

// IncUnitsConverted records one unit converted into a sequence group.
func (c *Collector) IncUnitsConverted() {
	if c == nil {
		return
	}
	c.add(&c.unitsConverted, 1)
}

// IncFallbackConversion records a conversion served by the summary fallback.
func (c *Collector) IncFallbackConversion() {
	if c == nil {
		return
	}
	c.add(&c.fallbackConversions, 1)
}

// IncFallbackFailure records a tolerated fallback failure.
func (c *Collector) IncFallbackFailure() {
	if c == nil {
		return
	}
	c.add(&c.fallbackFailures, 1)
}

// --- Reporting ---

// AddGroupsCounted records sequence groups scanned by aggregation.
func (c *Collector) AddGroupsCounted(n int) {
	if c == nil {
		return
	}
	c.add(&c.groupsCounted, int64(n))
}

// IncBestEffortFailure records a logged-and-ignored failure
// (run summary, notification, publishing).
func (c *Collector) IncBestEffortFailure() {
	if c == nil {
		return
	}
	c.add(&c.bestEffortFailures, 1)
}

// AddRecordsPublished records rows written to the external dataset.
func (c *Collector) AddRecordsPublished(n int) {
	if c == nil {
		return
	}
	c.add(&c.recordsPublished, int64(n))
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ToolInvocations: copyCounts(c.toolInvocations),
		ToolFailures:    copyCounts(c.toolFailures),

		UnitsProduced:  c.unitsProduced,
		UnitsDropped:   c.unitsDropped,
		UnitsConverted: c.unitsConverted,

		FallbackConversions: c.fallbackConversions,
		FallbackFailures:    c.fallbackFailures,

		GroupsCounted:      c.groupsCounted,
		BestEffortFailures: c.bestEffortFailures,
		RecordsPublished:   c.recordsPublished,

		Mode:  c.mode,
		Model: c.model,
		RunID: c.runID,
		JobID: c.jobID,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
