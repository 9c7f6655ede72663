package join

const (
	rateThreshold = 16
	maxRate       = 16.0
)

// PlaybackRate returns the catch-up rate for a backlog of b segments and
// whether it should be applied. Backlogs of rateThreshold or less leave the
// rate untouched.
func PlaybackRate(b int) (float64, bool) {
	if b <= rateThreshold {
		return 1, false
	}
	rate := 1 + 0.5*float64(b)
	if rate > maxRate {
		rate = maxRate
	}
	return rate, true
}
