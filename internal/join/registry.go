package join

import "sort"

// SegmentState is the materialization state of a segment.
type SegmentState int

const (
	StatePending SegmentState = iota
	StateAttached
	StatePlaying
	StatePlayed
	StateErrored
)

func (s SegmentState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttached:
		return "attached"
	case StatePlaying:
		return "playing"
	case StatePlayed:
		return "played"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

type entry struct {
	index   int
	name    string
	unit    Unit
	state   SegmentState
	rate    float64
	retried bool
	ready   bool
}

// registry holds materialized segments that are not attached yet.
type registry struct {
	pending map[int]*entry
}

func newRegistry() *registry {
	return &registry{pending: make(map[int]*entry)}
}

func (r *registry) put(e *entry) {
	r.pending[e.index] = e
}

func (r *registry) has(index int) bool {
	_, ok := r.pending[index]
	return ok
}

// take removes and returns the entry for index.
func (r *registry) take(index int) (*entry, bool) {
	e, ok := r.pending[index]
	if ok {
		delete(r.pending, index)
	}
	return e, ok
}

func (r *registry) len() int { return len(r.pending) }

// countAbove returns how many pending segments have an index greater than index.
func (r *registry) countAbove(index int) int {
	n := 0
	for i := range r.pending {
		if i > index {
			n++
		}
	}
	return n
}

// indices returns the pending indices in ascending order.
func (r *registry) indices() []int {
	out := make([]int, 0, len(r.pending))
	for i := range r.pending {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// drain removes every entry and returns them in index order.
func (r *registry) drain() []*entry {
	out := make([]*entry, 0, len(r.pending))
	for _, i := range r.indices() {
		out = append(out, r.pending[i])
	}
	r.pending = make(map[int]*entry)
	return out
}
