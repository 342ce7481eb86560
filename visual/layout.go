// Package visual keeps advisory node positions for drawing a topology. The
// positions never influence simulation results.
package visual

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/netsim/network"
)

// Position is a point on the drawing canvas.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Layout maps nodes to positions.
type Layout struct {
	positions map[network.NodeID]Position
}

// NewLayout creates an empty layout.
func NewLayout() *Layout {
	return &Layout{positions: make(map[network.NodeID]Position)}
}

// SetPosition places node at (x, y).
func (l *Layout) SetPosition(node network.NodeID, x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: position of node %d must be finite",
			network.ErrInvalidConfiguration, node)
	}

	l.positions[node] = Position{X: x, Y: y}

	return nil
}

// Position returns where node was placed.
func (l *Layout) Position(node network.NodeID) (Position, bool) {
	p, ok := l.positions[node]
	return p, ok
}

// Len returns the number of placed nodes.
func (l *Layout) Len() int {
	return len(l.positions)
}

type placedNode struct {
	Node     network.NodeID `yaml:"node"`
	Position `yaml:",inline"`
}

type layoutFile struct {
	Nodes []placedNode `yaml:"nodes"`
}

// WriteYAML writes the layout sorted by node ID.
func (l *Layout) WriteYAML(w io.Writer) error {
	ids := make([]network.NodeID, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var f layoutFile
	for _, id := range ids {
		f.Nodes = append(f.Nodes, placedNode{Node: id, Position: l.positions[id]})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(f); err != nil {
		return err
	}

	return enc.Close()
}

// SaveYAML writes the layout to a file.
func (l *Layout) SaveYAML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := l.WriteYAML(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// ReadYAML parses a layout written by WriteYAML.
func ReadYAML(r io.Reader) (*Layout, error) {
	var f layoutFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, err
	}

	l := NewLayout()
	for _, n := range f.Nodes {
		if err := l.SetPosition(n.Node, n.X, n.Y); err != nil {
			return nil, err
		}
	}

	return l, nil
}
