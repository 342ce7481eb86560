// Package addressing gives every node a stable IPv4 address on each link it
// is attached to.
package addressing

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"

	"github.com/sarchlab/netsim/network"
)

// Assignment is the address of one node on one link.
type Assignment struct {
	Node   network.NodeID `json:"node" yaml:"node"`
	Link   network.LinkID `json:"link" yaml:"link"`
	Addr   netip.Addr     `json:"addr" yaml:"addr"`
	Prefix netip.Prefix   `json:"prefix" yaml:"prefix"`
}

type nodeLink struct {
	node network.NodeID
	link network.LinkID
}

// Allocator hands out host addresses from the subnets assigned to links.
type Allocator struct {
	prefixes []netip.Prefix
	byLink   map[network.LinkID][]Assignment
	byNode   map[network.NodeID][]Assignment
	byPair   map[nodeLink]netip.Addr
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		byLink: make(map[network.LinkID][]Assignment),
		byNode: make(map[network.NodeID][]Assignment),
		byPair: make(map[nodeLink]netip.Addr),
	}
}

// AssignSubnet gives the endpoints of link consecutive host addresses in the
// subnet base/mask, in attachment order. The mask is written in dotted form,
// for example 255.255.255.0.
func (a *Allocator) AssignSubnet(
	link network.Link,
	base, mask string,
) ([]Assignment, error) {
	prefix, err := ParseSubnet(base, mask)
	if err != nil {
		return nil, err
	}

	if _, done := a.byLink[link.ID()]; done {
		return nil, fmt.Errorf("%w: link %s already has a subnet",
			network.ErrInvalidConfiguration, link.Name())
	}

	for _, p := range a.prefixes {
		if p.Overlaps(prefix) {
			return nil, fmt.Errorf("%w: subnet %s overlaps %s",
				network.ErrInvalidConfiguration, prefix, p)
		}
	}

	endpoints := link.Endpoints()
	if uint64(len(endpoints)) > hostCapacity(prefix) {
		return nil, fmt.Errorf("%w: subnet %s cannot hold %d hosts",
			network.ErrInvalidConfiguration, prefix, len(endpoints))
	}

	assignments := make([]Assignment, 0, len(endpoints))
	addr := prefix.Addr()
	for _, n := range endpoints {
		addr = addr.Next()
		assignments = append(assignments, Assignment{
			Node:   n.ID(),
			Link:   link.ID(),
			Addr:   addr,
			Prefix: prefix,
		})
	}

	a.prefixes = append(a.prefixes, prefix)
	a.byLink[link.ID()] = assignments
	for _, as := range assignments {
		a.byNode[as.Node] = append(a.byNode[as.Node], as)
		a.byPair[nodeLink{as.Node, as.Link}] = as.Addr
	}

	return assignments, nil
}

// Resolve returns the first address assigned to node.
func (a *Allocator) Resolve(node network.NodeID) (netip.Addr, bool) {
	as := a.byNode[node]
	if len(as) == 0 {
		return netip.Addr{}, false
	}

	return as[0].Addr, true
}

// ResolveOn returns the address of node on link.
func (a *Allocator) ResolveOn(
	node network.NodeID,
	link network.LinkID,
) (netip.Addr, bool) {
	addr, ok := a.byPair[nodeLink{node, link}]
	return addr, ok
}

// Lookup returns the node owning addr.
func (a *Allocator) Lookup(addr netip.Addr) (network.NodeID, bool) {
	for pair, owned := range a.byPair {
		if owned == addr {
			return pair.node, true
		}
	}

	return 0, false
}

// Assignments returns the addresses of a link in attachment order.
func (a *Allocator) Assignments(link network.LinkID) []Assignment {
	return a.byLink[link]
}

// ParseSubnet turns a base address and a dotted mask into a prefix. The base
// must not have host bits set.
func ParseSubnet(base, mask string) (netip.Prefix, error) {
	addr, err := netip.ParseAddr(base)
	if err != nil || !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: base %q is not an IPv4 address",
			network.ErrInvalidConfiguration, base)
	}

	m, err := netip.ParseAddr(mask)
	if err != nil || !m.Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: mask %q is not a dotted IPv4 mask",
			network.ErrInvalidConfiguration, mask)
	}

	raw := m.As4()
	word := binary.BigEndian.Uint32(raw[:])
	ones := bits.LeadingZeros32(^word)
	if bits.TrailingZeros32(word) != 32-ones {
		return netip.Prefix{}, fmt.Errorf("%w: mask %s is not contiguous",
			network.ErrInvalidConfiguration, mask)
	}

	prefix := netip.PrefixFrom(addr, ones)
	if prefix.Masked().Addr() != addr {
		return netip.Prefix{}, fmt.Errorf("%w: base %s has host bits set for mask %s",
			network.ErrInvalidConfiguration, base, mask)
	}

	return prefix, nil
}

// hostCapacity returns the number of usable host addresses, excluding the
// network and broadcast addresses.
func hostCapacity(p netip.Prefix) uint64 {
	hostBits := 32 - p.Bits()
	if hostBits < 2 {
		return 0
	}

	return (uint64(1) << hostBits) - 2
}
