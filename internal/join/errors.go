package join

import "github.com/pkg/errors"

// Construction errors. A backend cannot run without its attach target.
var (
	ErrNoContainer = errors.New("join: container not exist")
	ErrNoPipeline  = errors.New("join: pipeline not exist")
	ErrNoHost      = errors.New("join: host not exist")
	ErrNoScheduler = errors.New("join: scheduler not exist")
)

// ErrNotReady is reported when a unit started playing but never signalled
// readiness within the poll budget.
var ErrNotReady = errors.New("join: unit never became ready")
