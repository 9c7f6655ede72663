package headless

import (
	"time"

	"videojoin/internal/join"
)

// Pipeline is a simulated append-only media buffer. Every update completes
// after UpdateDelay and is reported to the bound StreamBuffer.
type Pipeline struct {
	sched       join.Scheduler
	updateDelay time.Duration
	onUpdateEnd func()

	updating    bool
	ranges      int
	currentTime float64
	appended    int
	bytes       int64
	ended       bool
	released    bool
}

var _ join.Pipeline = (*Pipeline)(nil)

// NewPipeline returns an open pipeline whose updates take updateDelay.
func NewPipeline(sched join.Scheduler, updateDelay time.Duration) *Pipeline {
	return &Pipeline{sched: sched, updateDelay: updateDelay}
}

// Bind routes update-end signals to b.
func (p *Pipeline) Bind(b *join.StreamBuffer) {
	p.onUpdateEnd = b.UpdateEnd
}

func (p *Pipeline) Updating() bool { return p.updating }

func (p *Pipeline) BufferedRanges() int { return p.ranges }

func (p *Pipeline) AppendBuffer(data []byte) {
	p.update(func() {
		p.ranges = 1
		p.appended++
		p.bytes += int64(len(data))
	})
}

func (p *Pipeline) RemoveAll() {
	p.update(func() { p.ranges = 0 })
}

func (p *Pipeline) SetCurrentTime(seconds float64) { p.currentTime = seconds }

func (p *Pipeline) EndOfStream() { p.ended = true }

func (p *Pipeline) Release() {
	p.released = true
	p.onUpdateEnd = nil
}

// Appended returns the number of completed appends and their total size.
func (p *Pipeline) Appended() (int, int64) { return p.appended, p.bytes }

func (p *Pipeline) update(apply func()) {
	if p.released || p.ended {
		return
	}
	p.updating = true
	p.sched.AfterFunc(p.updateDelay, func() {
		p.updating = false
		apply()
		if p.onUpdateEnd != nil {
			p.onUpdateEnd()
		}
	})
}
