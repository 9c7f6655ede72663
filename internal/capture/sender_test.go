package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeDevice struct {
	err        error
	log        *eventLog
	emptyEvery int
	closed     int
	made       int
}

func (d *fakeDevice) Open(context.Context, Constraints) (Source, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d, nil
}

func (d *fakeDevice) NewRecorder(RecorderOptions) (Recorder, error) {
	d.made++
	return &fakeRecorder{id: string(rune('A' + d.made - 1)), dev: d}, nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

type fakeRecorder struct {
	id     string
	dev    *fakeDevice
	active bool
	stops  int
}

func (r *fakeRecorder) Start() error {
	if r.active {
		return ErrRecorderActive
	}
	r.active = true
	r.dev.log.add("start " + r.id)
	return nil
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	if !r.active {
		return nil, nil
	}
	r.active = false
	r.stops++
	r.dev.log.add("stop " + r.id)
	if r.dev.emptyEvery > 0 && r.stops%r.dev.emptyEvery == 0 {
		return nil, nil
	}
	return []byte(fmt.Sprintf("%s%d", r.id, r.stops)), nil
}

type chunkSink struct {
	mu     sync.Mutex
	chunks []string
}

func (s *chunkSink) send(b []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, string(b))
	s.mu.Unlock()
}

func (s *chunkSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *chunkSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chunks...)
}

func record(t *testing.T, dev *fakeDevice, mode Mode, want int) *chunkSink {
	t.Helper()
	s := NewSender(dev, Options{Period: 5 * time.Millisecond, Mode: mode}, quiet)
	sink := &chunkSink{}
	s.SetSink(sink.send)
	require.NoError(t, s.Acquire(context.Background(), Constraints{Audio: true, Video: true}))
	require.NoError(t, s.Begin(context.Background()))
	require.Eventually(t, func() bool { return sink.len() >= want }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.StopRecording())
	return sink
}

func TestSender_pingpong_alternates_without_gap(t *testing.T) {
	dev := &fakeDevice{log: &eventLog{}}
	sink := record(t, dev, ModePingPong, 4)

	chunks := sink.all()
	assert.Equal(t, []string{"A1", "B1", "A2", "B2"}, chunks[:4])
	assert.Equal(t, 2, dev.made)

	// The next recorder starts before the previous one stops.
	events := dev.log.snapshot()
	assert.Equal(t, []string{"start A", "start B", "stop A", "start A", "stop B"}, events[:5])
	assert.Equal(t, 1, dev.closed)
}

func TestSender_single_mode(t *testing.T) {
	dev := &fakeDevice{log: &eventLog{}}
	sink := record(t, dev, ModeSingle, 3)

	assert.Equal(t, []string{"A1", "A2", "A3"}, sink.all()[:3])
	assert.Equal(t, 1, dev.made)
	events := dev.log.snapshot()
	assert.Equal(t, []string{"start A", "stop A", "start A"}, events[:3])
}

func TestSender_skips_empty_chunks(t *testing.T) {
	dev := &fakeDevice{log: &eventLog{}, emptyEvery: 2}
	sink := record(t, dev, ModeSingle, 3)

	for _, c := range sink.all() {
		assert.NotEmpty(t, c)
	}
	assert.Equal(t, []string{"A1", "A3", "A5"}, sink.all()[:3])
}

func TestSender_acquire_failure(t *testing.T) {
	boom := errors.New("permission denied")
	s := NewSender(&fakeDevice{err: boom, log: &eventLog{}}, Options{}, quiet)

	err := s.Acquire(context.Background(), Constraints{Video: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(s.Begin(context.Background()), ErrNotAcquired))

	assert.True(t, errors.Is(NewSender(nil, Options{}, quiet).Acquire(context.Background(), Constraints{}), ErrNoDevice))
}

func TestSender_stop_is_idempotent(t *testing.T) {
	dev := &fakeDevice{log: &eventLog{}}
	s := NewSender(dev, Options{Period: time.Hour}, quiet)
	sink := &chunkSink{}
	s.SetSink(sink.send)
	require.NoError(t, s.Acquire(context.Background(), Constraints{Video: true}))
	require.NoError(t, s.Begin(context.Background()))

	require.NoError(t, s.StopRecording())
	require.NoError(t, s.StopRecording())
	assert.Equal(t, 1, dev.closed)
	assert.Equal(t, []string{"A1"}, sink.all(), "active recorder flushed on stop")
	assert.Error(t, s.Begin(context.Background()))
}

func TestOptions_defaults(t *testing.T) {
	o := Options{}.normalized()
	assert.Equal(t, 320000, o.AudioBitsPerSecond)
	assert.Equal(t, 500000, o.VideoBitsPerSecond)
	assert.Equal(t, 600*time.Millisecond, o.Period)
	assert.Equal(t, "video/webm;codecs=vp8,opus", o.MIME)
	assert.Equal(t, ModePingPong, o.Mode)
	assert.Equal(t, ModeSingle, ParseMode("single"))
	assert.Equal(t, ModePingPong, ParseMode("pingpong"))
}
