package join

import (
	"io"
	"log/slog"
)

// Pipeline is the host's append-only media buffer feeding one continuous
// decoder. Completion of AppendBuffer and RemoveAll is reported by calling
// StreamBuffer.UpdateEnd on the scheduler.
type Pipeline interface {
	Updating() bool
	// BufferedRanges returns the number of time ranges currently buffered.
	BufferedRanges() int
	AppendBuffer(data []byte)
	// RemoveAll starts removing every buffered range.
	RemoveAll()
	SetCurrentTime(seconds float64)
	EndOfStream()
	// Release frees the resource reference backing the pipeline.
	Release()
}

type pipelineOp int

const (
	opNone pipelineOp = iota
	opAppend
	opRemove
)

// StreamBuffer feeds segments in put order to a single Pipeline.
type StreamBuffer struct {
	pipeline Pipeline
	sched    Scheduler
	opts     Options
	log      *slog.Logger
	obs      Observer

	buffers  map[int][]byte
	putcount int // next index to assign
	addcount int // next index to append
	held     int // appended segments not yet removed from the pipeline

	first         bool
	starved       bool
	lastOp        pipelineOp
	rewindPending bool
	rewound       bool
	on            bool
}

var _ Backend = (*StreamBuffer)(nil)

// NewStreamBuffer returns a StreamBuffer appending to pipeline.
func NewStreamBuffer(pipeline Pipeline, sched Scheduler, opts Options) (*StreamBuffer, error) {
	if pipeline == nil {
		return nil, ErrNoPipeline
	}
	if sched == nil {
		return nil, ErrNoScheduler
	}
	opts = opts.normalized()
	return &StreamBuffer{
		pipeline: pipeline,
		sched:    sched,
		opts:     opts,
		log:      opts.Logger.With("component", "stream-buffer"),
		obs:      opts.Observer,
		buffers:  make(map[int][]byte),
		putcount: 1,
		addcount: 1,
		first:    true,
		on:       true,
	}, nil
}

// AddBytes ingests a segment held in memory.
func (b *StreamBuffer) AddBytes(data []byte) int {
	return b.AddSegment(Payload{Data: data, MIME: b.opts.MIME})
}

// AddBlob reads r off the scheduler and ingests its content once read.
func (b *StreamBuffer) AddBlob(r io.Reader) {
	go func() {
		data, err := io.ReadAll(r)
		if err != nil {
			b.log.Warn("read blob failed", "error", err)
			return
		}
		b.sched.Defer(func() { b.AddBytes(data) })
	}()
}

// AddSegment implements Backend.AddSegment. Only byte payloads can be
// appended; anything else is dropped and 0 returned.
func (b *StreamBuffer) AddSegment(p Payload) int {
	if !b.on {
		return 0
	}
	if len(p.Data) == 0 {
		b.log.Warn("segment without bytes dropped", "url", p.URL)
		return 0
	}
	index := b.putcount
	b.putcount++
	b.buffers[index] = p.Data
	b.obs.SegmentIngested(len(p.Data))

	if b.first && b.more() && !b.pipeline.Updating() {
		b.first = false
		b.appendNext()
		return index
	}
	if !b.first && b.starved {
		b.UpdateEnd()
	}
	return index
}

// UpdateEnd advances the append loop. The host calls it each time the
// pipeline finishes an update; ingest calls it to resume a starved loop.
func (b *StreamBuffer) UpdateEnd() {
	if !b.on || b.pipeline.Updating() {
		return
	}
	finished := b.lastOp
	b.lastOp = opNone
	if finished == opAppend && b.rewindPending {
		b.rewindPending = false
		b.rewound = true
		b.pipeline.SetCurrentTime(0)
		b.log.Debug("playback rewound to start")
	}
	if b.more() {
		b.starved = false
		b.appendNext()
		return
	}
	b.starved = true
}

// Stop signals end of stream and releases the pipeline. Stop is idempotent.
func (b *StreamBuffer) Stop() {
	if !b.on {
		return
	}
	b.on = false
	b.buffers = make(map[int][]byte)
	b.pipeline.EndOfStream()
	b.pipeline.Release()
	b.log.Debug("stream buffer stopped", "appended", b.addcount-1, "received", b.putcount-1)
}

// Stats implements Backend.Stats.
func (b *StreamBuffer) Stats() Stats {
	return Stats{
		Next:    b.putcount,
		Current: b.addcount - 1,
		Loaded:  b.addcount - 1,
		Started: b.addcount - 1,
		Pending: len(b.buffers),
		Playing: !b.first && !b.starved,
		On:      b.on,
		Rate:    1,
	}
}

func (b *StreamBuffer) more() bool {
	return b.putcount > b.addcount
}

// appendNext appends the next queued buffer, or clears the pipeline first
// when it still holds buffered content.
func (b *StreamBuffer) appendNext() {
	if b.pipeline.BufferedRanges() > 0 {
		b.lastOp = opRemove
		if !b.rewound {
			b.rewindPending = true
		}
		b.pipeline.RemoveAll()
		if b.held > 0 {
			b.obs.SegmentsEvicted(b.held)
			b.held = 0
		}
		return
	}
	index := b.addcount
	b.addcount++
	data := b.buffers[index]
	delete(b.buffers, index)
	b.lastOp = opAppend
	b.pipeline.AppendBuffer(data)
	b.held++
	b.obs.SegmentStarted(index, 1)
}
