package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaybackRate(t *testing.T) {
	tests := []struct {
		backlog int
		rate    float64
		apply   bool
	}{
		{0, 1, false},
		{16, 1, false},
		{17, 9.5, true},
		{20, 11, true},
		{30, 16, true},
		{31, 16, true},
		{500, 16, true},
	}
	for _, tt := range tests {
		rate, apply := PlaybackRate(tt.backlog)
		assert.Equal(t, tt.apply, apply, "backlog %d", tt.backlog)
		assert.Equal(t, tt.rate, rate, "backlog %d", tt.backlog)
	}
}
