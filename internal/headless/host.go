// Package headless simulates the platform side of a join session: a decoder
// that loads and plays units with virtual timing, and an append-only
// pipeline. It lets the playback engine run inside a server process.
package headless

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"videojoin/internal/join"
)

var (
	// ErrUnsupported is raised when a payload fails container validation.
	ErrUnsupported = errors.New("headless: unsupported payload")
	// ErrReleased is returned by Play on a released unit.
	ErrReleased = errors.New("headless: unit released")
)

// ebmlMagic starts every WebM/Matroska stream.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Config controls simulated timing.
type Config struct {
	// SegmentDuration is how long one segment plays at rate 1.
	SegmentDuration time.Duration
	// DecodeDelay is the time between load and readiness.
	DecodeDelay time.Duration
	// Validate decides whether a payload decodes. Nil uses Validate.
	Validate func(join.Payload) error
}

// DefaultConfig matches the default recorder period.
func DefaultConfig() Config {
	return Config{
		SegmentDuration: 600 * time.Millisecond,
		DecodeDelay:     20 * time.Millisecond,
	}
}

// Validate accepts http(s)/file/blob references and byte payloads. WebM byte
// payloads must begin with the EBML header.
func Validate(p join.Payload) error {
	if p.URL != "" {
		u, err := url.Parse(p.URL)
		if err != nil {
			return errors.Wrap(err, "headless: parse url")
		}
		switch u.Scheme {
		case "http", "https", "file", "blob":
			return nil
		}
		return errors.Wrapf(ErrUnsupported, "scheme %q", u.Scheme)
	}
	if len(p.Data) == 0 {
		return errors.Wrap(ErrUnsupported, "empty payload")
	}
	if strings.Contains(p.MIME, "webm") && !bytes.HasPrefix(p.Data, ebmlMagic) {
		return errors.Wrap(ErrUnsupported, "missing EBML header")
	}
	return nil
}

// Host builds simulated units on a scheduler.
type Host struct {
	sched   join.Scheduler
	cfg     Config
	log     *slog.Logger
	visible string
}

var _ join.Host = (*Host)(nil)

// NewHost returns a Host whose timers run on sched.
func NewHost(sched join.Scheduler, cfg Config, log *slog.Logger) *Host {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultConfig().SegmentDuration
	}
	if cfg.Validate == nil {
		cfg.Validate = Validate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Host{sched: sched, cfg: cfg, log: log.With("component", "headless-host")}
}

// Visible returns the name of the unit shown last.
func (h *Host) Visible() string { return h.visible }

// NewUnit implements join.Host. Loading starts immediately.
func (h *Host) NewUnit(spec join.UnitSpec, ev join.UnitEvents) join.Unit {
	u := &unit{host: h, spec: spec, ev: ev, rate: 1}
	u.load()
	return u
}

type unit struct {
	host *Host
	spec join.UnitSpec
	ev   join.UnitEvents

	rate     float64
	loadGen  int
	playGen  int
	ready    bool
	playing  bool
	released bool
}

func (u *unit) load() {
	u.loadGen++
	gen := u.loadGen
	u.ready = false
	u.host.sched.AfterFunc(u.host.cfg.DecodeDelay, func() {
		if u.released || gen != u.loadGen {
			return
		}
		if err := u.host.cfg.Validate(u.spec.Payload); err != nil {
			u.ev.Error(err)
			return
		}
		u.ready = true
		u.ev.Ready()
		u.scheduleEnd()
	})
}

func (u *unit) scheduleEnd() {
	if !u.ready || !u.playing {
		return
	}
	u.playGen++
	gen := u.playGen
	d := time.Duration(float64(u.host.cfg.SegmentDuration) / u.rate)
	u.host.sched.AfterFunc(d, func() {
		if u.released || !u.playing || gen != u.playGen {
			return
		}
		u.playing = false
		u.ev.Ended()
	})
}

func (u *unit) Play(done func(err error)) {
	if u.released {
		u.host.sched.Defer(func() { done(ErrReleased) })
		return
	}
	u.playing = true
	u.scheduleEnd()
	u.host.sched.Defer(func() { done(nil) })
}

func (u *unit) Pause() {
	u.playing = false
	u.playGen++
}

func (u *unit) Load() {
	if u.released {
		return
	}
	u.load()
}

func (u *unit) SetPlaybackRate(rate float64) {
	if rate > 0 {
		u.rate = rate
	}
}

func (u *unit) Show() {
	u.host.visible = u.spec.Name
	u.host.log.Debug("unit visible", "name", u.spec.Name, "rate", u.rate)
}

func (u *unit) Release() {
	u.released = true
	u.playing = false
	u.spec.Payload.Data = nil
}
