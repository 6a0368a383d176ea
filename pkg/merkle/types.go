package merkle

import (
	"github.com/NethermindEth/juno/core/felt"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// MerkleTree commits one round's cumulative allocations.
//
// Nodes live in a flat arena and reference their children by index. Because
// leaves are laid out in address order and pairing only ever joins
// neighbouring nodes of a level (or a node with its own duplicate), every
// subtree covers a contiguous run of the sorted allocations. Each node stores
// that run as [lo, hi], which answers "does this subtree contain address X"
// without materialising address sets.
type MerkleTree struct {
	// Allocations are the tree's leaves in ascending address order.
	Allocations []types.CumulativeAllocation

	nodes []node
	root  int32
	depth int
}

// node is an arena entry. Leaves have left == right == noChild.
type node struct {
	value felt.Felt
	left  int32
	right int32
	lo    int32
	hi    int32
}

const noChild int32 = -1

func (n *node) isLeaf() bool {
	return n.left == noChild
}

func (n *node) covers(index int32) bool {
	return n.lo <= index && index <= n.hi
}
