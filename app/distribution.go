package app

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
)

// A Distribution draws durations for the on and off periods of a sender.
type Distribution interface {
	Sample() timing.VTimeInSec
}

// Constant always returns the same duration.
type Constant timing.VTimeInSec

// Sample returns the constant.
func (c Constant) Sample() timing.VTimeInSec {
	return timing.VTimeInSec(c)
}

// Exponential draws exponentially distributed durations from its own seeded
// source, so that equal seeds give equal sequences.
type Exponential struct {
	dist distuv.Exponential
	mean timing.VTimeInSec
}

// NewExponential creates an exponential distribution with the given mean.
func NewExponential(mean timing.VTimeInSec, seed uint64) (*Exponential, error) {
	if !mean.IsValid() || mean == 0 {
		return nil, fmt.Errorf("%w: exponential mean %g must be positive",
			network.ErrInvalidConfiguration, float64(mean))
	}

	return &Exponential{
		dist: distuv.Exponential{
			Rate: 1 / float64(mean),
			Src:  rand.NewSource(seed),
		},
		mean: mean,
	}, nil
}

// Mean returns the configured mean.
func (e *Exponential) Mean() timing.VTimeInSec {
	return e.mean
}

// Sample draws a duration.
func (e *Exponential) Sample() timing.VTimeInSec {
	return timing.VTimeInSec(e.dist.Rand())
}
