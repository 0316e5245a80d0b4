package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/nanoplex/adapter"
	"github.com/pithecene-io/nanoplex/adapter/redis"
	"github.com/pithecene-io/nanoplex/adapter/webhook"
	"github.com/pithecene-io/nanoplex/cli/config"
	"github.com/pithecene-io/nanoplex/runtime"
	"github.com/pithecene-io/nanoplex/types"
)

const (
	adapterWebhook = "webhook"
	adapterRedis   = "redis"
)

// adapterChoice holds resolved notification configuration.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

// adapterChoiceFrom resolves the adapter flags over the config file.
func adapterChoiceFrom(c *cli.Context, fc *config.Config) (adapterChoice, error) {
	ac := fc.Adapter
	choice := adapterChoice{
		kind:    stringOpt(c, "adapter", ac.Type),
		url:     stringOpt(c, "adapter-url", ac.URL),
		channel: stringOpt(c, "adapter-channel", ac.Channel),
		headers: make(map[string]string),
		timeout: c.Duration("adapter-timeout"),
		retries: c.Int("adapter-retries"),
	}
	if !c.IsSet("adapter-timeout") && ac.Timeout.Duration > 0 {
		choice.timeout = ac.Timeout.Duration
	}
	if !c.IsSet("adapter-retries") && ac.Retries != nil {
		choice.retries = *ac.Retries
	}

	for k, v := range ac.Headers {
		choice.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return adapterChoice{}, fmt.Errorf("invalid adapter header %q (want Key=Value)", h)
		}
		choice.headers[strings.TrimSpace(k)] = v
	}

	switch choice.kind {
	case "":
		if choice.url != "" {
			return adapterChoice{}, errors.New("adapter-url requires --adapter")
		}
	case adapterWebhook, adapterRedis:
	default:
		return adapterChoice{}, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", choice.kind)
	}
	return choice, nil
}

// build returns the configured adapter, or nil when notifications are off.
func (a adapterChoice) build() (adapter.Adapter, error) {
	switch a.kind {
	case adapterWebhook:
		w, err := webhook.New(webhook.Config{
			URL:     a.url,
			Headers: a.headers,
			Timeout: a.timeout,
			Retries: a.retries,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	case adapterRedis:
		r, err := redis.New(redis.Config{
			URL:     a.url,
			Channel: a.channel,
			Timeout: a.timeout,
			Retries: a.retries,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, nil
	}
}

// newRunCompletedEvent describes a finished run. result is nil on failure.
func newRunCompletedEvent(
	cfg types.RunConfig,
	result *runtime.Result,
	runErr error,
	storagePath string,
	now time.Time,
	duration time.Duration,
) *adapter.RunCompletedEvent {
	event := &adapter.RunCompletedEvent{
		FormatVersion: types.ReportFormatVersion,
		EventType:     adapter.EventRunCompleted,
		RunID:         cfg.RunMeta.RunID,
		Outcome:       adapter.OutcomeSuccess,
		Mode:          string(cfg.Mode),
		Model:         cfg.Model,
		OutputRoot:    cfg.OutputRoot,
		StoragePath:   storagePath,
		Timestamp:     adapter.FormatTimestamp(now),
		DurationMs:    duration.Milliseconds(),
	}
	if cfg.RunMeta.JobID != nil {
		event.JobID = *cfg.RunMeta.JobID
	}
	if runErr != nil {
		event.Outcome = adapter.OutcomeFailed
		event.ErrorKind = runtime.KindName(runErr)
	}
	if result != nil {
		event.TotalReads = result.Summary.TotalReads
		event.Groups = result.Summary.Groups
		event.UnclassifiedPct = result.Summary.UnclassifiedPct
	}
	return event
}
