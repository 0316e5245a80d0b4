package lode

import (
	"context"

	"github.com/pithecene-io/nanoplex/metrics"
)

// InstrumentedClient counts published records on the run's collector.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// Publish delegates to the inner client and records what was written.
func (c *InstrumentedClient) Publish(ctx context.Context, pub *Publication) (int, error) {
	n, err := c.inner.Publish(ctx, pub)
	c.collector.AddRecordsPublished(n)
	if err != nil {
		c.collector.IncBestEffortFailure()
	}
	return n, err
}

var _ Client = (*InstrumentedClient)(nil)
