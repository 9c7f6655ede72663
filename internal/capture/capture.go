// Package capture records a local source in fixed periods and forwards
// every chunk to a sink. It is the sending end of a join session.
package capture

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoDevice is returned when no capture source is available.
	ErrNoDevice = errors.New("capture: MediaDevice data unavailable")
	// ErrNotAcquired is returned by Begin before a successful Acquire.
	ErrNotAcquired = errors.New("capture: device not acquired")
	// ErrRecorderActive is returned when starting a running recorder.
	ErrRecorderActive = errors.New("capture: recorder already active")
)

// Mode selects how recorders alternate.
type Mode int

const (
	// ModePingPong runs two recorders; the next one starts before the
	// previous one is stopped and flushed.
	ModePingPong Mode = iota
	// ModeSingle restarts one recorder every period.
	ModeSingle
)

func (m Mode) String() string {
	if m == ModeSingle {
		return "single"
	}
	return "pingpong"
}

// ParseMode maps "single" to ModeSingle; anything else is ModePingPong.
func ParseMode(s string) Mode {
	if s == "single" {
		return ModeSingle
	}
	return ModePingPong
}

// Defaults for Options.
const (
	DefaultAudioBitsPerSecond = 320000
	DefaultVideoBitsPerSecond = 500000
	DefaultPeriod             = 600 * time.Millisecond
	DefaultMIME               = "video/webm;codecs=vp8,opus"
)

// Options configure a Sender. Zero fields take the defaults.
type Options struct {
	AudioBitsPerSecond int
	VideoBitsPerSecond int
	Period             time.Duration
	MIME               string
	Mode               Mode
}

func (o Options) normalized() Options {
	if o.AudioBitsPerSecond <= 0 {
		o.AudioBitsPerSecond = DefaultAudioBitsPerSecond
	}
	if o.VideoBitsPerSecond <= 0 {
		o.VideoBitsPerSecond = DefaultVideoBitsPerSecond
	}
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.MIME == "" {
		o.MIME = DefaultMIME
	}
	return o
}

// Constraints select the capture source.
type Constraints struct {
	Audio bool
	Video bool
}

// RecorderOptions are handed to every recorder a Source creates.
type RecorderOptions struct {
	AudioBitsPerSecond int
	VideoBitsPerSecond int
	MIME               string
}

// Device acquires capture sources.
type Device interface {
	Open(ctx context.Context, c Constraints) (Source, error)
}

// Source is an acquired stream that recorders read from.
type Source interface {
	NewRecorder(opts RecorderOptions) (Recorder, error)
	Close() error
}

// Recorder records between Start and Stop. Stop returns the chunk recorded
// since the matching Start; stopping an idle recorder returns no data.
type Recorder interface {
	Start() error
	Stop() ([]byte, error)
}
