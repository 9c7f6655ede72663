package join

import (
	"io"
	"log/slog"
	"time"
)

// Stats is a snapshot of a backend's cursors.
type Stats struct {
	Next     int // index assigned to the next ingested segment
	Current  int // index selected for playback
	Loaded   int // highest index attached to the container
	Evicted  int // eviction cursor
	Started  int // highest index whose playback began
	Pending  int // materialized, not attached
	Attached int
	Playing  bool
	On       bool
	Rate     float64
	// States counts materialized segments by state. Nil for backends
	// without per-segment units.
	States map[SegmentState]int
}

// Backend is the playback capability shared by Sequencer and StreamBuffer.
// Methods must be called on the backend's Scheduler.
type Backend interface {
	// AddSegment ingests one segment and returns its index.
	AddSegment(p Payload) int
	Stop()
	Stats() Stats
}

// Sequencer plays segments back-to-back, each in its own Unit.
//
// Cursor invariant in steady state: delnum <= currentnum <= loadnum <= addcount.
// videoOn is true while a playback attempt is in flight.
type Sequencer struct {
	host      Host
	container Container
	sched     Scheduler
	opts      Options
	log       *slog.Logger
	obs       Observer

	fingerprint uint32
	pending     *registry
	live        map[int]*entry

	addcount   int
	currentnum int
	loadnum    int
	delnum     int
	started    int
	rate       float64

	videoOn bool
	on      bool
}

var _ Backend = (*Sequencer)(nil)

// NewSequencer returns a sequencer that attaches units built by host into
// container. All callbacks run on sched.
func NewSequencer(host Host, container Container, sched Scheduler, opts Options) (*Sequencer, error) {
	if container == nil {
		return nil, ErrNoContainer
	}
	if host == nil {
		return nil, ErrNoHost
	}
	if sched == nil {
		return nil, ErrNoScheduler
	}
	opts = opts.normalized()
	fp := newFingerprint(time.Now())
	return &Sequencer{
		host:        host,
		container:   container,
		sched:       sched,
		opts:        opts,
		log:         opts.Logger.With("component", "sequencer", "fingerprint", fp),
		obs:         opts.Observer,
		fingerprint: fp,
		pending:     newRegistry(),
		live:        make(map[int]*entry),
		addcount:    1,
		loadnum:     1,
		delnum:      1,
		rate:        1,
		on:          true,
	}, nil
}

// Fingerprint returns the session fingerprint used in unit names.
func (s *Sequencer) Fingerprint() uint32 { return s.fingerprint }

// AddURL ingests a segment referenced by url.
func (s *Sequencer) AddURL(url string) int {
	return s.AddSegment(Payload{URL: url})
}

// AddBytes ingests a segment held in memory.
func (s *Sequencer) AddBytes(data []byte) int {
	return s.AddSegment(Payload{Data: data, MIME: s.opts.MIME})
}

// AddBlob reads r off the scheduler and ingests its content once read.
func (s *Sequencer) AddBlob(r io.Reader) {
	go func() {
		data, err := io.ReadAll(r)
		if err != nil {
			s.log.Warn("read blob failed", "error", err)
			return
		}
		s.sched.Defer(func() { s.AddBytes(data) })
	}()
}

// AddSegment implements Backend.AddSegment. It returns 0 once stopped.
func (s *Sequencer) AddSegment(p Payload) int {
	if !s.on {
		return 0
	}
	index := s.addcount
	s.addcount++
	s.pending.put(s.materialize(index, p))
	s.obs.SegmentIngested(p.Size())

	if s.videoOn {
		return index
	}
	if s.opts.Realtime {
		s.attemptPlay(index)
		return index
	}
	// Resume at the next sequential index, never ahead of ingestion.
	next := max(s.currentnum, s.started+1)
	if next <= index {
		s.attemptPlay(next)
	}
	return index
}

// Stop turns the sequencer off and empties the container. Listeners that
// fire afterwards are ignored. Stop is idempotent.
func (s *Sequencer) Stop() {
	if s.on {
		s.log.Debug("sequencer stopped", "current", s.currentnum, "next", s.addcount)
	}
	s.on = false
	s.videoOn = false
	for i, e := range s.live {
		e.unit.Release()
		delete(s.live, i)
	}
	for _, e := range s.pending.drain() {
		e.unit.Release()
	}
	s.container.Clear()
}

// Stats implements Backend.Stats.
func (s *Sequencer) Stats() Stats {
	return Stats{
		Next:     s.addcount,
		Current:  s.currentnum,
		Loaded:   s.loadnum,
		Evicted:  s.delnum,
		Started:  s.started,
		Pending:  s.pending.len(),
		Attached: s.container.Len(),
		Playing:  s.videoOn,
		On:       s.on,
		Rate:     s.rate,
		States:   s.states(),
	}
}

func (s *Sequencer) states() map[SegmentState]int {
	out := make(map[SegmentState]int)
	for _, e := range s.live {
		out[e.state]++
	}
	for _, e := range s.pending.pending {
		out[e.state]++
	}
	return out
}

func (s *Sequencer) materialize(index int, p Payload) *entry {
	e := &entry{
		index: index,
		name:  UnitName(s.fingerprint, index),
		state: StatePending,
		rate:  1,
	}
	e.unit = s.host.NewUnit(UnitSpec{
		Name:       e.name,
		Index:      index,
		Payload:    p,
		ReadyEvent: s.opts.ReadyEvent,
	}, UnitEvents{
		Ended: func() { s.onEnded(e) },
		Error: func(err error) { s.onError(e, err) },
		Ready: func() { s.onReady(e) },
	})
	return e
}

// materializeBatch attaches target alone when target > 0. Otherwise it
// attaches the oldest pending units, only while the container holds fewer
// than BatchCap nodes and never past BatchCap nodes in total.
func (s *Sequencer) materializeBatch(target int) {
	if target > 0 {
		if e, ok := s.pending.take(target); ok {
			s.attach(e)
		}
		return
	}
	room := s.opts.BatchCap - s.container.Len()
	if room <= 0 {
		return
	}
	for _, i := range s.pending.indices() {
		if room == 0 {
			break
		}
		e, _ := s.pending.take(i)
		s.attach(e)
		room--
	}
}

func (s *Sequencer) attach(e *entry) {
	s.container.Append(e.name, e.unit)
	s.live[e.index] = e
	e.state = StateAttached
	if e.index > s.loadnum {
		s.loadnum = e.index
	}
}

// lookup finds the attached unit of index by its container name.
func (s *Sequencer) lookup(index int) (*entry, bool) {
	e, ok := s.live[index]
	if !ok {
		return nil, false
	}
	if _, attached := s.container.Lookup(e.name); !attached {
		return nil, false
	}
	return e, true
}

func (s *Sequencer) attemptPlay(index int) {
	if !s.on {
		return
	}
	s.materializeBatch(0)
	if index > s.currentnum {
		s.currentnum = index
	}

	if e, ok := s.lookup(index); ok {
		s.videoOn = true
		if s.opts.RateUp {
			s.applyRate(e)
		}
		s.play(e, 1)
		return
	}

	if s.pending.has(index) {
		s.materializeBatch(index)
		s.attemptPlay(index)
		return
	}

	if s.currentnum < s.loadnum {
		for i := s.currentnum + 1; i <= s.loadnum; i++ {
			if _, ok := s.lookup(i); ok {
				s.log.Info("segment missing, skipping forward", "index", index, "next", i)
				s.obs.SegmentSkipped(index)
				s.attemptPlay(i)
				return
			}
		}
	}
	s.videoOn = false
}

// backlog counts materialized segments queued behind index.
func (s *Sequencer) backlog(index int) int {
	n := s.pending.countAbove(index)
	for i := range s.live {
		if i > index {
			n++
		}
	}
	return n
}

func (s *Sequencer) applyRate(e *entry) {
	b := s.backlog(e.index)
	rate, ok := PlaybackRate(b)
	if !ok {
		return
	}
	e.unit.SetPlaybackRate(rate)
	e.rate = rate
	s.log.Info("playback rate raised", "index", e.index, "backlog", b, "rate", rate)
}

func (s *Sequencer) play(e *entry, retries int) {
	e.unit.Play(func(err error) {
		if !s.on || s.live[e.index] != e {
			return
		}
		if err != nil {
			s.playFailed(e, retries, err)
			return
		}
		s.awaitReady(e, retries, 0)
	})
}

// awaitReady polls the readiness marker. Playback may be reported started
// before the unit is decodable.
func (s *Sequencer) awaitReady(e *entry, retries, tick int) {
	if !s.on {
		return
	}
	if _, ok := s.lookup(e.index); !ok {
		if s.currentnum == e.index {
			s.videoOn = false
		}
		return
	}
	if !e.ready {
		if tick >= s.opts.ReadyPollLimit {
			s.playFailed(e, retries, ErrNotReady)
			return
		}
		s.sched.AfterFunc(s.opts.ReadyPollInterval, func() {
			s.awaitReady(e, retries, tick+1)
		})
		return
	}

	e.state = StatePlaying
	if e.index > s.started {
		s.started = e.index
	}
	s.rate = e.rate
	e.unit.Show()
	s.obs.SegmentStarted(e.index, e.rate)
	s.evict(e.index-1, false)
}

// playFailed ignores units that were evicted meanwhile: the attempt in
// flight then belongs to a later segment.
func (s *Sequencer) playFailed(e *entry, retries int, err error) {
	if !s.on || s.live[e.index] != e {
		return
	}
	if retries > 0 {
		s.log.Debug("play failed, reloading", "index", e.index, "error", err)
		s.obs.SegmentReloaded(e.index)
		e.unit.Load()
		s.play(e, retries-1)
		return
	}
	s.log.Warn("play failed", "index", e.index, "error", err)
	e.state = StateErrored
	s.evict(e.index, true)
	if s.currentnum == e.index {
		s.videoOn = false
	}
}

func (s *Sequencer) onEnded(e *entry) {
	if !s.on {
		return
	}
	e.unit.Pause()
	e.state = StatePlayed
	s.attemptPlay(e.index + 1)
}

func (s *Sequencer) onError(e *entry, err error) {
	if !s.on {
		return
	}
	if !e.retried {
		e.retried = true
		s.log.Debug("segment load failed, reloading", "index", e.index, "error", err)
		s.obs.SegmentReloaded(e.index)
		e.unit.Load()
		return
	}
	s.log.Info("segment failed twice, skipping", "index", e.index, "error", err)
	e.state = StateErrored
	s.evict(e.index, true)
	s.obs.SegmentSkipped(e.index)
	if s.currentnum == e.index {
		s.attemptPlay(e.index + 1)
	}
}

func (s *Sequencer) onReady(e *entry) {
	if !s.on {
		return
	}
	e.ready = true
}

// evict removes index alone when single is set. Otherwise it sweeps every
// index from the eviction cursor through index and advances the cursor.
// Absent indices are ignored.
func (s *Sequencer) evict(index int, single bool) {
	if single {
		if s.remove(index) {
			s.obs.SegmentsEvicted(1)
		}
		return
	}
	if index < s.delnum {
		return
	}
	n := 0
	for i := s.delnum; i <= index; i++ {
		if s.remove(i) {
			n++
		}
	}
	s.delnum = index
	if n > 0 {
		s.obs.SegmentsEvicted(n)
	}
}

func (s *Sequencer) remove(index int) bool {
	e, ok := s.pending.take(index)
	if !ok {
		if e, ok = s.live[index]; !ok {
			return false
		}
		delete(s.live, index)
		s.container.Remove(e.name)
	}
	e.unit.Release()
	s.log.Debug("segment released", "index", index, "state", e.state.String())
	return true
}
