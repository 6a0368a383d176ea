package merkle

import (
	"errors"
	"fmt"
	"sort"

	"github.com/NethermindEth/juno/core/felt"

	"github.com/defispring/allocation-merkle-go/pkg/crypto"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

var (
	ErrEmptyAllocations = errors.New("cannot build merkle tree from empty allocation list")
	ErrDuplicateAddress = errors.New("duplicate address in allocation list")
)

// NewMerkleTree builds the tree for a set of cumulative allocations.
//
// Leaves are sorted by address and hashed with crypto.HashLeaf. If a level has
// an odd number of nodes its last node is duplicated. Each level is paired by
// repeatedly taking the two nodes at its tail, so the next level comes out in
// reverse order. The on-chain verifier does not care about positions since
// crypto.HashPair orders its inputs, but roots depend on this exact pairing.
func NewMerkleTree(allocations []types.CumulativeAllocation) (*MerkleTree, error) {
	if len(allocations) == 0 {
		return nil, ErrEmptyAllocations
	}

	sorted := SortAllocations(allocations)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Address.Equal(sorted[i].Address) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, sorted[i].Address.Hex())
		}
	}

	mt := &MerkleTree{
		Allocations: sorted,
		nodes:       make([]node, 0, 2*len(sorted)+1),
	}

	level := make([]int32, 0, len(sorted)+1)
	for i, alloc := range sorted {
		level = append(level, mt.addLeaf(int32(i), alloc))
	}
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}

	for {
		next := make([]int32, 0, len(level)/2+1)
		for len(level) > 0 {
			a := level[len(level)-1]
			b := level[len(level)-2]
			level = level[:len(level)-2]
			next = append(next, mt.addParent(a, b))
		}
		mt.depth++

		if len(next) == 1 {
			mt.root = next[0]
			break
		}
		if len(next)%2 == 1 {
			next = append(next, next[len(next)-1])
		}
		level = next
	}

	return mt, nil
}

func (mt *MerkleTree) addLeaf(index int32, alloc types.CumulativeAllocation) int32 {
	mt.nodes = append(mt.nodes, node{
		value: *crypto.HashLeaf(alloc.Address, alloc.CumulativeAmount),
		left:  noChild,
		right: noChild,
		lo:    index,
		hi:    index,
	})
	return int32(len(mt.nodes) - 1)
}

// addParent joins two nodes; the smaller hash becomes the left child.
func (mt *MerkleTree) addParent(a, b int32) int32 {
	left, right := a, b
	if mt.nodes[a].value.Cmp(&mt.nodes[b].value) >= 0 {
		left, right = b, a
	}

	l, r := mt.nodes[left], mt.nodes[right]
	parent := node{
		value: *crypto.HashPair(&l.value, &r.value),
		left:  left,
		right: right,
		lo:    min(l.lo, r.lo),
		hi:    max(l.hi, r.hi),
	}
	mt.nodes = append(mt.nodes, parent)
	return int32(len(mt.nodes) - 1)
}

// SortAllocations returns a copy of allocations sorted by address ascending.
func SortAllocations(allocations []types.CumulativeAllocation) []types.CumulativeAllocation {
	sorted := make([]types.CumulativeAllocation, len(allocations))
	copy(sorted, allocations)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address.Cmp(sorted[j].Address) < 0
	})

	return sorted
}

// Root returns a copy of the root hash.
func (mt *MerkleTree) Root() *felt.Felt {
	v := mt.nodes[mt.root].value
	return &v
}

// RootHex returns the root in canonical hex.
func (mt *MerkleTree) RootHex() string {
	return types.FormatFelt(&mt.nodes[mt.root].value)
}

// LeafCount is the number of distinct allocations committed by the tree.
func (mt *MerkleTree) LeafCount() int {
	return len(mt.Allocations)
}

// Depth is the number of sibling hashes in every proof.
func (mt *MerkleTree) Depth() int {
	return mt.depth
}

// AccessibleAddresses lists the addresses reachable from the root, ascending.
func (mt *MerkleTree) AccessibleAddresses() []types.Address {
	r := mt.nodes[mt.root]
	out := make([]types.Address, 0, r.hi-r.lo+1)
	for i := r.lo; i <= r.hi; i++ {
		out = append(out, mt.Allocations[i].Address)
	}
	return out
}

// indexOf finds the position of address in the sorted allocations.
func (mt *MerkleTree) indexOf(address types.Address) (int32, bool) {
	i := sort.Search(len(mt.Allocations), func(i int) bool {
		return mt.Allocations[i].Address.Cmp(address) >= 0
	})
	if i < len(mt.Allocations) && mt.Allocations[i].Address.Equal(address) {
		return int32(i), true
	}
	return 0, false
}

// Contains reports whether the tree commits an allocation for address.
func (mt *MerkleTree) Contains(address types.Address) bool {
	idx, ok := mt.indexOf(address)
	return ok && mt.nodes[mt.root].covers(idx)
}

// AddressAmount returns the cumulative amount for address and whether the
// address is in the tree.
func (mt *MerkleTree) AddressAmount(address types.Address) (types.Amount, bool) {
	idx, ok := mt.indexOf(address)
	if !ok {
		return types.Amount{}, false
	}
	return mt.Allocations[idx].CumulativeAmount, true
}
