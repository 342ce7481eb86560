package network

import (
	"fmt"

	"github.com/sarchlab/netsim/timing"
)

// DataRate is a link capacity in bits per second.
type DataRate uint64

// Defines the unit of data rates.
const (
	Bps  DataRate = 1
	Kbps DataRate = 1e3
	Mbps DataRate = 1e6
	Gbps DataRate = 1e9
)

// SerializationDelay returns the time needed to put payloadBytes on the wire.
// The rate must not be zero.
func (r DataRate) SerializationDelay(payloadBytes int) timing.VTimeInSec {
	return timing.VTimeInSec(float64(payloadBytes) * 8 / float64(r))
}

// String prints the rate with the largest fitting unit.
func (r DataRate) String() string {
	switch {
	case r >= Gbps && r%Gbps == 0:
		return fmt.Sprintf("%dGbps", r/Gbps)
	case r >= Mbps && r%Mbps == 0:
		return fmt.Sprintf("%dMbps", r/Mbps)
	case r >= Kbps && r%Kbps == 0:
		return fmt.Sprintf("%dKbps", r/Kbps)
	default:
		return fmt.Sprintf("%dbps", uint64(r))
	}
}
