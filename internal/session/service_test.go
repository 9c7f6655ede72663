package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videojoin/internal/join"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host.SegmentDuration = 20 * time.Millisecond
	cfg.Host.DecodeDelay = time.Millisecond
	cfg.PipelineDelay = time.Millisecond
	return cfg
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	svc := NewService(context.Background(), NewInMemoryRepository(), cfg, quiet, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, svc.Close(ctx))
	})
	return svc
}

// webm returns a payload that passes headless container validation.
func webm(n int) []byte {
	return append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, n)...)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantDiscrete, v)

	v, err = ParseVariant("Stream")
	require.NoError(t, err)
	assert.Equal(t, VariantStream, v)

	v, err = ParseVariant("audio")
	require.NoError(t, err)
	assert.Equal(t, VariantAudio, v)

	_, err = ParseVariant("hls")
	assert.True(t, errors.Is(err, ErrInvalidVariant))

	m, err := ParseMode("", ModeBuffered)
	require.NoError(t, err)
	assert.Equal(t, ModeBuffered, m)

	_, err = ParseMode("fast", ModeRealtime)
	assert.True(t, errors.Is(err, ErrInvalidMode))
}

func TestService_discrete_session_plays(t *testing.T) {
	svc := newTestService(t, testConfig())
	ctx := context.Background()

	sess, err := svc.CreateSession(VariantDiscrete, ModeRealtime)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.fingerprint)
	assert.Equal(t, 1, svc.ActiveSessions())

	for i := 1; i <= 3; i++ {
		index, err := svc.Ingest(ctx, sess.ID, join.Payload{Data: webm(16), MIME: join.DefaultMIME})
		require.NoError(t, err)
		assert.Equal(t, i, index)
	}

	assert.Eventually(t, func() bool {
		st, err := svc.Status(ctx, sess.ID)
		return err == nil && st.Started >= 1
	}, 2*time.Second, 5*time.Millisecond)

	st, err := svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Next)
	assert.Equal(t, VariantDiscrete, st.Variant)
}

func TestService_stream_session_drops_urls(t *testing.T) {
	svc := newTestService(t, testConfig())
	ctx := context.Background()

	sess, err := svc.CreateSession(VariantStream, ModeRealtime)
	require.NoError(t, err)
	assert.Empty(t, sess.fingerprint)

	_, err = svc.Ingest(ctx, sess.ID, join.Payload{URL: "https://cdn.example/1.webm"})
	assert.True(t, errors.Is(err, ErrSegmentDropped))

	index, err := svc.Ingest(ctx, sess.ID, join.Payload{Data: []byte("chunk")})
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	assert.Eventually(t, func() bool {
		st, err := svc.Status(ctx, sess.ID)
		return err == nil && st.Started == 1 && st.Pending == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestService_audio_session_plays_decoded_segments(t *testing.T) {
	svc := newTestService(t, testConfig())
	ctx := context.Background()

	sess, err := svc.CreateSession(VariantAudio, ModeRealtime)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, sess.ID, join.Payload{URL: "https://cdn.example/1.ogg"})
	assert.True(t, errors.Is(err, ErrSegmentDropped))

	for i := 1; i <= 2; i++ {
		index, err := svc.Ingest(ctx, sess.ID, join.Payload{Data: webm(8), MIME: join.DefaultMIME})
		require.NoError(t, err)
		assert.Equal(t, i, index)
	}

	assert.Eventually(t, func() bool {
		st, err := svc.Status(ctx, sess.ID)
		return err == nil && st.Evicted == 2 && !st.Playing
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.EndSession(ctx, sess.ID))
	st, err := svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Ended)
	assert.Equal(t, VariantAudio, st.Variant)
	assert.Equal(t, 3, st.Next)
}

func TestService_Ingest_errors(t *testing.T) {
	svc := newTestService(t, testConfig())
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "missing", join.Payload{Data: []byte{1}})
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	sess, err := svc.CreateSession(VariantDiscrete, ModeBuffered)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, sess.ID, join.Payload{})
	assert.True(t, errors.Is(err, ErrEmptySegment))
}

func TestService_EndSession(t *testing.T) {
	svc := newTestService(t, testConfig())
	ctx := context.Background()

	sess, err := svc.CreateSession(VariantDiscrete, ModeRealtime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, sess.ID, join.Payload{Data: webm(8), MIME: join.DefaultMIME})
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(ctx, sess.ID))
	require.NoError(t, svc.EndSession(ctx, sess.ID), "ending twice is a no-op")
	assert.Equal(t, 0, svc.ActiveSessions())

	_, err = svc.Ingest(ctx, sess.ID, join.Payload{Data: webm(8)})
	assert.True(t, errors.Is(err, ErrSessionEnded))

	st, err := svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Ended)
	assert.Equal(t, 2, st.Next)
	assert.Equal(t, 0, st.Attached)
	assert.False(t, st.Playing)

	assert.Equal(t, 1, svc.Purge())
	_, err = svc.Status(ctx, sess.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	assert.True(t, errors.Is(svc.EndSession(ctx, "missing"), ErrSessionNotFound))
}

func TestService_MaxSessions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	svc := newTestService(t, cfg)

	first, err := svc.CreateSession(VariantDiscrete, ModeRealtime)
	require.NoError(t, err)
	_, err = svc.CreateSession(VariantStream, ModeRealtime)
	assert.True(t, errors.Is(err, ErrTooManySessions))

	require.NoError(t, svc.EndSession(context.Background(), first.ID))
	_, err = svc.CreateSession(VariantStream, ModeRealtime)
	assert.NoError(t, err)
}

func TestService_Close(t *testing.T) {
	svc := NewService(context.Background(), NewInMemoryRepository(), testConfig(), quiet, nil)
	sess, err := svc.CreateSession(VariantDiscrete, ModeRealtime)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Close(ctx))

	assert.True(t, sess.Ended())
	_, err = svc.CreateSession(VariantDiscrete, ModeRealtime)
	assert.True(t, errors.Is(err, ErrServiceClosed))
}

func TestService_MaxSessions_concurrent_creates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 3
	svc := newTestService(t, cfg)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateSession(VariantStream, ModeRealtime); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, ErrTooManySessions), "unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Equal(t, 3, svc.ActiveSessions())
}

func TestService_Close_after_parent_cancel_keeps_cursors(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	svc := NewService(parent, NewInMemoryRepository(), testConfig(), quiet, nil)
	sess, err := svc.CreateSession(VariantDiscrete, ModeRealtime)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Ingest(ctx, sess.ID, join.Payload{Data: webm(8), MIME: join.DefaultMIME})
		require.NoError(t, err)
	}

	cancel()
	select {
	case <-sess.loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session loop kept running after cancel")
	}

	closeCtx, closeCancel := context.WithTimeout(ctx, 5*time.Second)
	defer closeCancel()
	require.NoError(t, svc.Close(closeCtx))

	st, err := svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Ended)
	assert.Equal(t, 4, st.Next)
	assert.Equal(t, 0, st.Attached)
	assert.False(t, st.Playing)
}

func TestStatus_apply_names_segment_states(t *testing.T) {
	var st Status
	st.apply(join.Stats{Next: 5, States: map[join.SegmentState]int{join.StatePlaying: 1, join.StatePending: 3}})

	assert.Equal(t, 5, st.Next)
	assert.Equal(t, map[string]int{"playing": 1, "pending": 3}, st.States)

	st = Status{}
	st.apply(join.Stats{})
	assert.Nil(t, st.States)
}
