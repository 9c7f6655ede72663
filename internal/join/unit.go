package join

// Payload is the content of one segment: either an external reference or
// raw bytes.
type Payload struct {
	URL  string
	Data []byte
	MIME string
}

// Size returns the number of payload bytes held in memory.
func (p Payload) Size() int { return len(p.Data) }

// UnitSpec describes the unit a Host must build for one segment.
type UnitSpec struct {
	Name       string
	Index      int
	Payload    Payload
	ReadyEvent string
}

// UnitEvents are the listeners installed on a unit at materialization.
// Hosts must invoke them on the session's Scheduler.
type UnitEvents struct {
	Ended func()
	Error func(err error)
	Ready func()
}

// Unit is the decoder-facing playable handle of one segment. All methods are
// called on the scheduler goroutine and must not block.
type Unit interface {
	// Play starts playback; done receives nil once playback has begun or the
	// rejection reason. done is invoked on the scheduler.
	Play(done func(err error))
	Pause()
	// Load forces the unit to reload its payload.
	Load()
	SetPlaybackRate(rate float64)
	// Show makes the unit the visible one.
	Show()
	// Release frees the backing resource reference.
	Release()
}

// Host materializes units for a session.
type Host interface {
	NewUnit(spec UnitSpec, events UnitEvents) Unit
}

// Container is the live, visible set of attached units, kept in insertion
// order and addressed by unit name.
type Container interface {
	Append(name string, u Unit)
	Remove(name string) bool
	Lookup(name string) (Unit, bool)
	Len() int
	Clear()
}

type node struct {
	name string
	unit Unit
}

// NodeList is an in-memory Container.
type NodeList struct {
	nodes []node
}

// NewNodeList returns an empty container.
func NewNodeList() *NodeList {
	return &NodeList{}
}

// Append implements Container.Append. Appending an existing name moves it
// to the end.
func (l *NodeList) Append(name string, u Unit) {
	l.Remove(name)
	l.nodes = append(l.nodes, node{name: name, unit: u})
}

// Remove implements Container.Remove.
func (l *NodeList) Remove(name string) bool {
	for i, n := range l.nodes {
		if n.name == name {
			l.nodes = append(l.nodes[:i], l.nodes[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup implements Container.Lookup.
func (l *NodeList) Lookup(name string) (Unit, bool) {
	for _, n := range l.nodes {
		if n.name == name {
			return n.unit, true
		}
	}
	return nil, false
}

// Len implements Container.Len.
func (l *NodeList) Len() int { return len(l.nodes) }

// Clear implements Container.Clear.
func (l *NodeList) Clear() { l.nodes = nil }

// Names returns the attached unit names in insertion order.
func (l *NodeList) Names() []string {
	names := make([]string, 0, len(l.nodes))
	for _, n := range l.nodes {
		names = append(names, n.name)
	}
	return names
}
