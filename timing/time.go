package timing

import (
	"fmt"
	"math"
	"time"
)

// VTimeInSec defines the time in the simulated space in the unit of second.
type VTimeInSec float64

// Units of simulated time.
const (
	Nanosecond  VTimeInSec = 1e-9
	Microsecond VTimeInSec = 1e-6
	Millisecond VTimeInSec = 1e-3
	Second      VTimeInSec = 1
)

// FromDuration converts a wall-clock style duration into simulated seconds.
func FromDuration(d time.Duration) VTimeInSec {
	return VTimeInSec(d.Seconds())
}

// IsValid reports whether t is a finite, non-negative time.
func (t VTimeInSec) IsValid() bool {
	f := float64(t)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// String prints the time in seconds with nanosecond resolution.
func (t VTimeInSec) String() string {
	return fmt.Sprintf("%.9fs", float64(t))
}
