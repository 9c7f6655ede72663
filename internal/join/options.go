package join

import (
	"log/slog"
	"time"
)

// Defaults for Options.
const (
	DefaultBatchCap          = 10
	DefaultReadyEvent        = "canplay"
	DefaultReadyPollInterval = 10 * time.Millisecond
	DefaultReadyPollLimit    = 500
	DefaultMIME              = "video/webm;codecs=vp8,opus"
)

// Options tune a backend. Start from DefaultOptions and override fields.
type Options struct {
	// Realtime makes an idle sequencer jump to the newest segment on ingest.
	// When false the sequencer resumes from the next sequential index.
	Realtime bool
	// RateUp enables the backlog-driven playback rate policy.
	RateUp bool
	// BatchCap bounds the units attached per batch and the container size
	// below which a batch is attached.
	BatchCap int
	// ReadyEvent names the platform event that stamps the readiness marker
	// ("canplay" or "canplaythrough").
	ReadyEvent string
	// ReadyPollInterval and ReadyPollLimit bound the wait for readiness after
	// a successful play call.
	ReadyPollInterval time.Duration
	ReadyPollLimit    int
	// MIME is attached to byte payloads and used for the continuous pipeline.
	MIME string

	Logger   *slog.Logger
	Observer Observer
}

// DefaultOptions returns realtime, rate-up options with default knobs.
func DefaultOptions() Options {
	return Options{
		Realtime:          true,
		RateUp:            true,
		BatchCap:          DefaultBatchCap,
		ReadyEvent:        DefaultReadyEvent,
		ReadyPollInterval: DefaultReadyPollInterval,
		ReadyPollLimit:    DefaultReadyPollLimit,
		MIME:              DefaultMIME,
	}
}

func (o Options) normalized() Options {
	if o.BatchCap <= 0 {
		o.BatchCap = DefaultBatchCap
	}
	if o.ReadyEvent == "" {
		o.ReadyEvent = DefaultReadyEvent
	}
	if o.ReadyPollInterval <= 0 {
		o.ReadyPollInterval = DefaultReadyPollInterval
	}
	if o.ReadyPollLimit <= 0 {
		o.ReadyPollLimit = DefaultReadyPollLimit
	}
	if o.MIME == "" {
		o.MIME = DefaultMIME
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}
