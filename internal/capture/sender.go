package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Sender acquires a source and pushes recorded chunks to a sink while
// recording is active.
type Sender struct {
	device Device
	opts   Options
	log    *slog.Logger

	mu        sync.Mutex
	sink      func(chunk []byte)
	source    Source
	recorders []Recorder
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   bool
}

// NewSender returns a Sender for device. log may be nil.
func NewSender(device Device, opts Options, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.normalized()
	return &Sender{
		device: device,
		opts:   opts,
		log:    log.With("component", "capture-sender", "mode", opts.Mode.String()),
	}
}

// SetSink sets the function that receives every non-empty chunk.
func (s *Sender) SetSink(fn func(chunk []byte)) {
	s.mu.Lock()
	s.sink = fn
	s.mu.Unlock()
}

// Acquire opens the device and prepares the recorders. A failure is final
// for this sender.
func (s *Sender) Acquire(ctx context.Context, c Constraints) error {
	if s.device == nil {
		return ErrNoDevice
	}
	src, err := s.device.Open(ctx, c)
	if err != nil {
		return errors.Wrap(err, "capture: acquire device")
	}
	if src == nil {
		return ErrNoDevice
	}

	n := 2
	if s.opts.Mode == ModeSingle {
		n = 1
	}
	ro := RecorderOptions{
		AudioBitsPerSecond: s.opts.AudioBitsPerSecond,
		VideoBitsPerSecond: s.opts.VideoBitsPerSecond,
		MIME:               s.opts.MIME,
	}
	recs := make([]Recorder, 0, n)
	for i := 0; i < n; i++ {
		r, err := src.NewRecorder(ro)
		if err != nil {
			src.Close()
			return errors.Wrapf(err, "capture: create recorder %d", i+1)
		}
		recs = append(recs, r)
	}

	s.mu.Lock()
	s.source = src
	s.recorders = recs
	s.mu.Unlock()
	s.log.Info("device acquired", "recorders", n, "period", s.opts.Period)
	return nil
}

// Begin starts periodic recording in the background. It returns once the
// first recorder runs.
func (s *Sender) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("capture: sender stopped")
	}
	if s.source == nil {
		return ErrNotAcquired
	}
	if s.done != nil {
		return nil
	}
	if err := s.recorders[0].Start(); err != nil {
		return errors.Wrap(err, "capture: start recorder")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.recorders, s.done)
	return nil
}

// StopRecording stops pushing, flushes the active recorder and releases the
// source. It is safe to call more than once.
func (s *Sender) StopRecording() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel, done, src := s.cancel, s.done, s.source
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if src == nil {
		return nil
	}
	if err := src.Close(); err != nil {
		return errors.Wrap(err, "capture: close source")
	}
	s.log.Info("recording stopped")
	return nil
}

func (s *Sender) run(ctx context.Context, recs []Recorder, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()

	cur := 0
	for {
		select {
		case <-ctx.Done():
			s.flush(recs[cur])
			return
		case <-ticker.C:
		}
		next := (cur + 1) % len(recs)
		if next != cur {
			if err := recs[next].Start(); err != nil {
				s.log.Error("start recorder failed", "error", err)
			}
			s.flush(recs[cur])
		} else {
			s.flush(recs[cur])
			if err := recs[cur].Start(); err != nil {
				s.log.Error("start recorder failed", "error", err)
			}
		}
		cur = next
	}
}

func (s *Sender) flush(r Recorder) {
	chunk, err := r.Stop()
	if err != nil {
		s.log.Error("stop recorder failed", "error", err)
		return
	}
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(chunk)
	}
}
