package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"videojoin/internal/headless"
	"videojoin/internal/join"
)

// DefaultPipelineDelay is how long a simulated pipeline update takes.
const DefaultPipelineDelay = 5 * time.Millisecond

// Config builds the engine of every session.
type Config struct {
	// Engine holds the backend options. Realtime is overridden per session
	// by its Mode.
	Engine join.Options
	// Host tunes the headless decoder used by discrete and audio sessions.
	Host headless.Config
	// PipelineDelay is the update latency of stream sessions.
	PipelineDelay time.Duration
	// MaxSessions bounds the sessions that are not ended. Zero means no limit.
	MaxSessions int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Engine:        join.DefaultOptions(),
		Host:          headless.DefaultConfig(),
		PipelineDelay: DefaultPipelineDelay,
	}
}

// Session is one join session: a backend and the event loop it runs on.
type Session struct {
	ID        ID
	Variant   Variant
	Mode      Mode
	CreatedAt time.Time

	loop        *join.Loop
	backend     join.Backend
	fingerprint string

	mu      sync.Mutex
	ended   bool
	final   join.Stats
	stopped sync.Once
}

func newSession(id ID, variant Variant, mode Mode, cfg Config, log *slog.Logger, obs join.Observer) (*Session, error) {
	loop := join.NewLoop()
	opts := cfg.Engine
	opts.Realtime = mode == ModeRealtime
	opts.Logger = log
	opts.Observer = obs

	s := &Session{
		ID:        id,
		Variant:   variant,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		loop:      loop,
	}

	switch variant {
	case VariantDiscrete:
		host := headless.NewHost(loop, cfg.Host, log)
		seq, err := join.NewSequencer(host, join.NewNodeList(), loop, opts)
		if err != nil {
			return nil, errors.Wrap(err, "session: new sequencer")
		}
		s.backend = seq
		s.fingerprint = strconv.FormatUint(uint64(seq.Fingerprint()), 10)
	case VariantStream:
		pipeline := headless.NewPipeline(loop, cfg.PipelineDelay)
		buf, err := join.NewStreamBuffer(pipeline, loop, opts)
		if err != nil {
			return nil, errors.Wrap(err, "session: new stream buffer")
		}
		pipeline.Bind(buf)
		s.backend = buf
	case VariantAudio:
		aj, err := join.NewAudioJoin(headless.NewAudioHost(loop, cfg.Host, log), loop, opts)
		if err != nil {
			return nil, errors.Wrap(err, "session: new audio join")
		}
		s.backend = aj
	default:
		return nil, errors.Wrapf(ErrInvalidVariant, "%q", variant)
	}
	return s, nil
}

// run processes the session's events until the loop is closed or ctx ends.
func (s *Session) run(ctx context.Context) error {
	err := s.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Ended reports whether the session has been ended.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

// Ingest hands p to the backend and returns the assigned index.
func (s *Session) Ingest(ctx context.Context, p join.Payload) (int, error) {
	if s.Ended() {
		return 0, ErrSessionEnded
	}
	index := 0
	err := s.loop.Do(ctx, func() { index = s.backend.AddSegment(p) })
	if errors.Is(err, join.ErrLoopClosed) {
		return 0, ErrSessionEnded
	}
	if err != nil {
		return 0, errors.Wrap(err, "session: ingest")
	}
	if index == 0 {
		if s.Ended() {
			return 0, ErrSessionEnded
		}
		return 0, ErrSegmentDropped
	}
	return index, nil
}

// Stats returns the backend's cursors, or its final cursors once stopped.
func (s *Session) Stats(ctx context.Context) (join.Stats, error) {
	var st join.Stats
	err := s.loop.Do(ctx, func() { st = s.backend.Stats() })
	if errors.Is(err, join.ErrLoopClosed) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.final, nil
	}
	if err != nil {
		return join.Stats{}, errors.Wrap(err, "session: stats")
	}
	return st, nil
}

// Status returns the JSON view of the session.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	out := Status{
		ID:          s.ID,
		Variant:     s.Variant,
		Mode:        s.Mode,
		Fingerprint: s.fingerprint,
		CreatedAt:   s.CreatedAt,
		Ended:       s.Ended(),
	}
	out.apply(st)
	return out, nil
}

// stop stops the backend on the loop, keeps its final cursors and closes
// the loop. When the loop has already exited, e.g. on service shutdown, the
// backend is stopped directly. Only the first call has an effect.
func (s *Session) stop(ctx context.Context) error {
	var err error
	s.stopped.Do(func() {
		finished := false
		halt := func() {
			s.backend.Stop()
			st := s.backend.Stats()
			s.mu.Lock()
			s.final = st
			s.mu.Unlock()
			finished = true
		}
		err = s.loop.Do(ctx, halt)
		s.loop.Close()
		if !errors.Is(err, join.ErrLoopClosed) {
			return
		}
		err = nil
		select {
		case <-s.loop.Done():
		case <-ctx.Done():
			err = errors.Wrap(ctx.Err(), "session: wait for loop")
			return
		}
		if !finished {
			halt()
		}
	})
	return err
}
