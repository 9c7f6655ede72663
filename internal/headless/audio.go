package headless

import (
	"log/slog"

	"videojoin/internal/join"
)

// AudioHost decodes audio payloads with virtual timing. A decoded source
// plays for one SegmentDuration.
type AudioHost struct {
	sched join.Scheduler
	cfg   Config
	log   *slog.Logger
}

var _ join.AudioHost = (*AudioHost)(nil)

// NewAudioHost returns an AudioHost whose timers run on sched.
func NewAudioHost(sched join.Scheduler, cfg Config, log *slog.Logger) *AudioHost {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultConfig().SegmentDuration
	}
	if cfg.Validate == nil {
		cfg.Validate = Validate
	}
	if log == nil {
		log = slog.Default()
	}
	return &AudioHost{sched: sched, cfg: cfg, log: log.With("component", "headless-audio")}
}

// Decode implements join.AudioHost. The result arrives after DecodeDelay.
func (h *AudioHost) Decode(p join.Payload, done func(join.AudioSource, error)) {
	size := len(p.Data)
	h.sched.AfterFunc(h.cfg.DecodeDelay, func() {
		if err := h.cfg.Validate(p); err != nil {
			done(nil, err)
			return
		}
		h.log.Debug("audio decoded", "bytes", size)
		done(&source{host: h}, nil)
	})
}

type source struct {
	host     *AudioHost
	started  bool
	released bool
}

func (s *source) Start(ended func()) {
	if s.released || s.started {
		return
	}
	s.started = true
	s.host.sched.AfterFunc(s.host.cfg.SegmentDuration, func() {
		if s.released {
			return
		}
		ended()
	})
}

func (s *source) Release() { s.released = true }
