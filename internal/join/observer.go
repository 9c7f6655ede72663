package join

// Observer receives engine events, e.g. for metrics. Calls happen on the
// scheduler goroutine.
type Observer interface {
	SegmentIngested(bytes int)
	SegmentStarted(index int, rate float64)
	SegmentsEvicted(n int)
	SegmentSkipped(index int)
	SegmentReloaded(index int)
}

type nopObserver struct{}

func (nopObserver) SegmentIngested(int)         {}
func (nopObserver) SegmentStarted(int, float64) {}
func (nopObserver) SegmentsEvicted(int)         {}
func (nopObserver) SegmentSkipped(int)          {}
func (nopObserver) SegmentReloaded(int)         {}
