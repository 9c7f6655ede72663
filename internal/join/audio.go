package join

import "log/slog"

// AudioSource is one decoded segment.
type AudioSource interface {
	// Start begins playback. ended is invoked on the scheduler once the
	// source has played out.
	Start(ended func())
	// Release frees the decoded buffer.
	Release()
}

// AudioHost decodes payloads into playable sources.
type AudioHost interface {
	// Decode decodes p without blocking and reports the source or the decode
	// error through done on the scheduler.
	Decode(p Payload, done func(AudioSource, error))
}

// AudioJoin plays decoded audio segments back-to-back in ingest order.
// A segment that fails to decode is skipped; a segment still decoding is
// waited for.
type AudioJoin struct {
	host  AudioHost
	sched Scheduler
	opts  Options
	log   *slog.Logger
	obs   Observer

	decoding map[int]bool
	decoded  map[int]AudioSource
	failed   map[int]bool

	number     int // last assigned index
	loaded     int // highest decoded index
	playNumber int
	evicted    int
	waiting    int // index playback waits for, 0 while a source plays
	playing    bool
	on         bool
}

var _ Backend = (*AudioJoin)(nil)

// NewAudioJoin returns an AudioJoin decoding through host.
func NewAudioJoin(host AudioHost, sched Scheduler, opts Options) (*AudioJoin, error) {
	if host == nil {
		return nil, ErrNoHost
	}
	if sched == nil {
		return nil, ErrNoScheduler
	}
	opts = opts.normalized()
	return &AudioJoin{
		host:     host,
		sched:    sched,
		opts:     opts,
		log:      opts.Logger.With("component", "audio-join"),
		obs:      opts.Observer,
		decoding: make(map[int]bool),
		decoded:  make(map[int]AudioSource),
		failed:   make(map[int]bool),
		waiting:  1,
		on:       true,
	}, nil
}

// AddBytes ingests an encoded audio segment held in memory.
func (a *AudioJoin) AddBytes(data []byte) int {
	return a.AddSegment(Payload{Data: data, MIME: a.opts.MIME})
}

// AddSegment implements Backend.AddSegment. Only byte payloads can be
// decoded; anything else is dropped and 0 returned.
func (a *AudioJoin) AddSegment(p Payload) int {
	if !a.on {
		return 0
	}
	if len(p.Data) == 0 {
		a.log.Warn("segment without bytes dropped", "url", p.URL)
		return 0
	}
	a.number++
	n := a.number
	a.decoding[n] = true
	a.obs.SegmentIngested(len(p.Data))
	a.host.Decode(p, func(src AudioSource, err error) { a.decodeDone(n, src, err) })
	return n
}

func (a *AudioJoin) decodeDone(n int, src AudioSource, err error) {
	delete(a.decoding, n)
	if !a.on {
		if src != nil {
			src.Release()
		}
		return
	}
	if err != nil {
		a.log.Warn("decode failed", "index", n, "error", err)
		a.failed[n] = true
	} else {
		a.decoded[n] = src
		if n > a.loaded {
			a.loaded = n
		}
	}
	if a.waiting == n {
		a.playsource(n)
	}
}

// playsource starts num, skipping failed segments. When num is not decoded
// yet playback waits for its decode to finish.
func (a *AudioJoin) playsource(num int) {
	for a.on {
		if src, ok := a.decoded[num]; ok {
			a.waiting = 0
			a.playing = true
			a.playNumber = num
			a.obs.SegmentStarted(num, 1)
			src.Start(func() { a.ended(num) })
			return
		}
		if !a.failed[num] {
			break
		}
		delete(a.failed, num)
		a.obs.SegmentSkipped(num)
		a.log.Debug("segment skipped", "index", num)
		num++
	}
	a.playing = false
	a.waiting = num
}

func (a *AudioJoin) ended(num int) {
	if !a.on || a.playNumber != num {
		return
	}
	if src, ok := a.decoded[num]; ok {
		src.Release()
		delete(a.decoded, num)
		a.evicted = num
		a.obs.SegmentsEvicted(1)
	}
	a.playsource(num + 1)
}

// Stop releases every decoded source. Decodes still in flight are released
// as they finish. Stop is idempotent.
func (a *AudioJoin) Stop() {
	if !a.on {
		return
	}
	a.on = false
	a.playing = false
	a.waiting = 0
	for n, src := range a.decoded {
		src.Release()
		delete(a.decoded, n)
	}
	a.failed = make(map[int]bool)
	a.log.Debug("audio join stopped", "current", a.playNumber, "next", a.number+1)
}

// Stats implements Backend.Stats. Attached counts decoded sources.
func (a *AudioJoin) Stats() Stats {
	return Stats{
		Next:     a.number + 1,
		Current:  a.playNumber,
		Loaded:   a.loaded,
		Evicted:  a.evicted,
		Started:  a.playNumber,
		Pending:  len(a.decoding),
		Attached: len(a.decoded),
		Playing:  a.playing,
		On:       a.on,
		Rate:     1,
	}
}
