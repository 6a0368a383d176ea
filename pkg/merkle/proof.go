package merkle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/NethermindEth/juno/core/felt"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrAddressNotFound = errors.New("address not found in tree")
)

// AddressCalldata produces the claim calldata for a textual address.
// A string that does not parse as an address yields ErrInvalidAddress; a
// well-formed address without an allocation yields ErrAddressNotFound.
func (mt *MerkleTree) AddressCalldata(address string) (*types.CalldataProof, error) {
	addr, err := types.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return mt.Calldata(addr)
}

// Calldata produces the claim calldata for a parsed address.
func (mt *MerkleTree) Calldata(address types.Address) (*types.CalldataProof, error) {
	idx, siblings, err := mt.proofPath(address)
	if err != nil {
		return nil, err
	}

	proof := make([]string, len(siblings))
	for i := range siblings {
		proof[i] = types.FormatFelt(&siblings[i])
	}

	return &types.CalldataProof{
		Amount: mt.Allocations[idx].CumulativeAmount.Hex(),
		Proof:  proof,
	}, nil
}

// proofPath walks from the root towards the leaf for address, collecting the
// sibling of every node on the way, and returns them leaf-first.
func (mt *MerkleTree) proofPath(address types.Address) (int32, []felt.Felt, error) {
	idx, ok := mt.indexOf(address)
	if !ok || !mt.nodes[mt.root].covers(idx) {
		return 0, nil, fmt.Errorf("%w: %s", ErrAddressNotFound, address.Hex())
	}

	siblings := make([]felt.Felt, 0, mt.depth)
	current := mt.root
	for !mt.nodes[current].isLeaf() {
		n := &mt.nodes[current]
		if mt.nodes[n.left].covers(idx) {
			siblings = append(siblings, mt.nodes[n.right].value)
			current = n.left
		} else {
			siblings = append(siblings, mt.nodes[n.left].value)
			current = n.right
		}
	}
	slices.Reverse(siblings)

	return idx, siblings, nil
}
