package capture

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ReaderDevice simulates a capture device over a byte stream: each recorder
// chunk holds the bytes the configured bitrates produce over the recording
// time.
type ReaderDevice struct {
	r   io.Reader
	now func() time.Time
}

// NewReaderDevice returns a device reading from r.
func NewReaderDevice(r io.Reader) *ReaderDevice {
	return &ReaderDevice{r: r, now: time.Now}
}

// Open implements Device.
func (d *ReaderDevice) Open(ctx context.Context, c Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.r == nil || (!c.Audio && !c.Video) {
		return nil, ErrNoDevice
	}
	return &readerSource{r: d.r, now: d.now, constraints: c}, nil
}

type readerSource struct {
	mu          sync.Mutex
	r           io.Reader
	now         func() time.Time
	constraints Constraints
	closed      bool
}

func (s *readerSource) NewRecorder(opts RecorderOptions) (Recorder, error) {
	bps := 0
	if s.constraints.Audio {
		bps += opts.AudioBitsPerSecond
	}
	if s.constraints.Video {
		bps += opts.VideoBitsPerSecond
	}
	if bps <= 0 {
		return nil, errors.New("capture: zero bitrate")
	}
	return &readerRecorder{src: s, bytesPerSecond: float64(bps) / 8}, nil
}

func (s *readerSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// read returns up to n bytes; a drained source yields a short or empty chunk.
func (s *readerSource) read(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(s.r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:got], err
}

type readerRecorder struct {
	src            *readerSource
	bytesPerSecond float64
	startedAt      time.Time
	active         bool
}

func (r *readerRecorder) Start() error {
	if r.active {
		return ErrRecorderActive
	}
	r.active = true
	r.startedAt = r.src.now()
	return nil
}

func (r *readerRecorder) Stop() ([]byte, error) {
	if !r.active {
		return nil, nil
	}
	r.active = false
	elapsed := r.src.now().Sub(r.startedAt)
	return r.src.read(int(elapsed.Seconds() * r.bytesPerSecond))
}

// SegmentDevice replays pre-cut segment files, one file per chunk.
type SegmentDevice struct {
	paths []string
}

// NewSegmentDevice returns a device yielding the files at paths in order.
func NewSegmentDevice(paths []string) *SegmentDevice {
	return &SegmentDevice{paths: paths}
}

// Open implements Device.
func (d *SegmentDevice) Open(ctx context.Context, _ Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.paths) == 0 {
		return nil, ErrNoDevice
	}
	return &segmentSource{paths: append([]string(nil), d.paths...)}, nil
}

type segmentSource struct {
	mu    sync.Mutex
	paths []string
	next  int
}

func (s *segmentSource) NewRecorder(RecorderOptions) (Recorder, error) {
	return &segmentRecorder{src: s}, nil
}

func (s *segmentSource) Close() error { return nil }

func (s *segmentSource) pop() ([]byte, error) {
	s.mu.Lock()
	if s.next >= len(s.paths) {
		s.mu.Unlock()
		return nil, nil
	}
	path := s.paths[s.next]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: read segment %s", path)
	}
	return data, nil
}

type segmentRecorder struct {
	src    *segmentSource
	active bool
}

func (r *segmentRecorder) Start() error {
	if r.active {
		return ErrRecorderActive
	}
	r.active = true
	return nil
}

func (r *segmentRecorder) Stop() ([]byte, error) {
	if !r.active {
		return nil, nil
	}
	r.active = false
	return r.src.pop()
}
