// Package idgen provides deterministic ID generators. Every simulation owns
// its own generator so that frame IDs do not depend on what else runs in the
// process.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// ID is a unique identifier represented as a uint64.
type ID uint64

// String renders the ID in decimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Generator produces unique identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is 1.
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.next, 1))
}

// UniqueName returns prefix followed by a globally unique, non-deterministic
// suffix. It is meant for output file names, never for simulation state.
func UniqueName(prefix string) string {
	return prefix + xid.New().String()
}
