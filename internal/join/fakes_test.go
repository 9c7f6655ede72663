package join

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"
)

var errDecode = errors.New("decode failed")

type task struct {
	at  time.Duration
	seq int
	fn  func()
}

// manualScheduler runs tasks deterministically on the test goroutine with
// a virtual clock.
type manualScheduler struct {
	now   time.Duration
	seq   int
	queue []task
}

func (m *manualScheduler) Defer(fn func()) { m.AfterFunc(0, fn) }

func (m *manualScheduler) AfterFunc(d time.Duration, fn func()) {
	m.seq++
	m.queue = append(m.queue, task{at: m.now + d, seq: m.seq, fn: fn})
}

func (m *manualScheduler) step() bool {
	if len(m.queue) == 0 {
		return false
	}
	sort.SliceStable(m.queue, func(i, j int) bool {
		if m.queue[i].at != m.queue[j].at {
			return m.queue[i].at < m.queue[j].at
		}
		return m.queue[i].seq < m.queue[j].seq
	})
	t := m.queue[0]
	m.queue = m.queue[1:]
	if t.at > m.now {
		m.now = t.at
	}
	t.fn()
	return true
}

// run drains the queue.
func (m *manualScheduler) run(t *testing.T) {
	t.Helper()
	m.runUntil(t, func() bool { return false })
}

// runUntil steps until cond holds or the queue is empty.
func (m *manualScheduler) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; !cond(); i++ {
		if i > 100000 {
			t.Fatal("scheduler did not settle")
		}
		if !m.step() {
			return
		}
	}
}

type behavior struct {
	failLoads  int // load attempts that raise an error event, counting the first
	failPlays  int // play calls that reject
	neverReady bool
}

type fakeHost struct {
	sched     *manualScheduler
	behaviors map[int]behavior
	autoEnd   time.Duration
	units     map[int]*fakeUnit
	started   []int
}

func newFakeHost(sched *manualScheduler) *fakeHost {
	return &fakeHost{
		sched:     sched,
		behaviors: make(map[int]behavior),
		units:     make(map[int]*fakeUnit),
	}
}

func (h *fakeHost) NewUnit(spec UnitSpec, ev UnitEvents) Unit {
	u := &fakeUnit{host: h, spec: spec, ev: ev, rate: 1, behavior: h.behaviors[spec.Index]}
	h.units[spec.Index] = u
	h.sched.Defer(u.load)
	return u
}

// end fires the natural end-of-segment event of index.
func (h *fakeHost) end(index int) {
	u := h.units[index]
	h.sched.Defer(u.ev.Ended)
}

type fakeUnit struct {
	host     *fakeHost
	spec     UnitSpec
	ev       UnitEvents
	behavior behavior

	loads     int
	plays     int
	rate      float64
	rateCalls int
	shown     bool
	paused    bool
	released  bool
}

func (u *fakeUnit) load() {
	u.loads++
	if u.loads <= u.behavior.failLoads {
		u.ev.Error(errDecode)
		return
	}
	if !u.behavior.neverReady {
		u.ev.Ready()
	}
}

func (u *fakeUnit) Play(done func(err error)) {
	u.plays++
	if u.plays <= u.behavior.failPlays {
		u.host.sched.Defer(func() { done(errDecode) })
		return
	}
	u.host.sched.Defer(func() { done(nil) })
}

func (u *fakeUnit) Pause() { u.paused = true }

func (u *fakeUnit) Load() { u.host.sched.Defer(u.load) }

func (u *fakeUnit) SetPlaybackRate(rate float64) {
	u.rate = rate
	u.rateCalls++
}

func (u *fakeUnit) Show() {
	u.shown = true
	u.host.started = append(u.host.started, u.spec.Index)
	if u.host.autoEnd > 0 {
		u.host.sched.AfterFunc(u.host.autoEnd, u.ev.Ended)
	}
}

func (u *fakeUnit) Release() { u.released = true }

func testOptions() Options {
	o := DefaultOptions()
	o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return o
}

type fakePipeline struct {
	updating bool
	ranges   int
	appended [][]byte
	removes  int
	seeks    []float64
	ended    int
	released int
}

func (p *fakePipeline) Updating() bool      { return p.updating }
func (p *fakePipeline) BufferedRanges() int { return p.ranges }

func (p *fakePipeline) AppendBuffer(data []byte) {
	p.appended = append(p.appended, data)
	p.updating = true
	p.ranges = 1
}

func (p *fakePipeline) RemoveAll() {
	p.removes++
	p.updating = true
	p.ranges = 0
}

func (p *fakePipeline) SetCurrentTime(s float64) { p.seeks = append(p.seeks, s) }
func (p *fakePipeline) EndOfStream()             { p.ended++ }
func (p *fakePipeline) Release()                 { p.released++ }

// finish completes the in-flight update and reports it.
func (p *fakePipeline) finish(b *StreamBuffer) {
	p.updating = false
	b.UpdateEnd()
}

type fakeAudioHost struct {
	sched   *manualScheduler
	fail    map[int]bool
	delay   map[int]time.Duration
	decodes int
	sources map[int]*fakeSource
	started []int
}

func newFakeAudioHost(sched *manualScheduler) *fakeAudioHost {
	return &fakeAudioHost{
		sched:   sched,
		fail:    make(map[int]bool),
		delay:   make(map[int]time.Duration),
		sources: make(map[int]*fakeSource),
	}
}

// Decode numbers payloads in call order, which matches ingest order.
func (h *fakeAudioHost) Decode(p Payload, done func(AudioSource, error)) {
	h.decodes++
	n := h.decodes
	h.sched.AfterFunc(h.delay[n], func() {
		if h.fail[n] {
			done(nil, errDecode)
			return
		}
		src := &fakeSource{host: h, index: n}
		h.sources[n] = src
		done(src, nil)
	})
}

// end finishes playback of source n.
func (h *fakeAudioHost) end(n int) {
	src := h.sources[n]
	h.sched.Defer(src.ended)
}

type fakeSource struct {
	host     *fakeAudioHost
	index    int
	ended    func()
	released bool
}

func (s *fakeSource) Start(ended func()) {
	s.ended = ended
	s.host.started = append(s.host.started, s.index)
}

func (s *fakeSource) Release() { s.released = true }
