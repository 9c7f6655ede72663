package capture

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderDevice_chunk_size_follows_bitrate(t *testing.T) {
	clock := time.Unix(0, 0)
	dev := NewReaderDevice(bytes.NewReader(make([]byte, 1500)))
	dev.now = func() time.Time { return clock }

	src, err := dev.Open(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	rec, err := src.NewRecorder(RecorderOptions{AudioBitsPerSecond: 8000, VideoBitsPerSecond: 8000})
	require.NoError(t, err)

	require.NoError(t, rec.Start())
	assert.True(t, errors.Is(rec.Start(), ErrRecorderActive))
	clock = clock.Add(500 * time.Millisecond)
	chunk, err := rec.Stop()
	require.NoError(t, err)
	assert.Len(t, chunk, 1000)

	require.NoError(t, rec.Start())
	clock = clock.Add(time.Second)
	chunk, err = rec.Stop()
	require.NoError(t, err)
	assert.Len(t, chunk, 500, "short read at end of stream")

	chunk, err = rec.Stop()
	require.NoError(t, err)
	assert.Empty(t, chunk)
	require.NoError(t, src.Close())
}

func TestReaderDevice_requires_track(t *testing.T) {
	_, err := NewReaderDevice(strings.NewReader("x")).Open(context.Background(), Constraints{})
	assert.True(t, errors.Is(err, ErrNoDevice))
	_, err = NewReaderDevice(nil).Open(context.Background(), Constraints{Video: true})
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestSegmentDevice_replays_files_in_order(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"1.webm", "2.webm"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		paths = append(paths, p)
	}
	src, err := NewSegmentDevice(paths).Open(context.Background(), Constraints{Video: true})
	require.NoError(t, err)
	a, _ := src.NewRecorder(RecorderOptions{})
	b, _ := src.NewRecorder(RecorderOptions{})

	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	got, err := a.Stop()
	require.NoError(t, err)
	assert.Equal(t, "1.webm", string(got))
	got, err = b.Stop()
	require.NoError(t, err)
	assert.Equal(t, "2.webm", string(got))

	require.NoError(t, a.Start())
	got, err = a.Stop()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewSegmentDevice(nil).Open(context.Background(), Constraints{})
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestWebsocketSink_sends_binary_messages(t *testing.T) {
	received := make(chan []byte, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := new(websocket.Upgrader).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				received <- data
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sink, err := DialWebsocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	sink.Send([]byte("one"))
	sink.Send([]byte("two"))
	assert.Equal(t, []byte("one"), <-received)
	assert.Equal(t, []byte("two"), <-received)
	assert.Equal(t, 2, sink.Sent())
	assert.NoError(t, sink.Err())
	assert.NoError(t, sink.Close())
}
