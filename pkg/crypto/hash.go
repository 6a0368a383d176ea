package crypto

import (
	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// HashLeaf commits an address to its cumulative amount as
// Poseidon(address, amount). The argument order is part of the on-chain
// contract and must not change.
func HashLeaf(address types.Address, amount types.Amount) *felt.Felt {
	return crypto.Poseidon(address.Felt(), amount.Felt())
}

// HashPair combines two sibling values as Pedersen(min, max), so the result
// does not depend on which side each child sits on.
func HashPair(a, b *felt.Felt) *felt.Felt {
	lo, hi := OrderPair(a, b)
	return crypto.Pedersen(lo, hi)
}

// OrderPair returns its arguments as (min, max).
func OrderPair(a, b *felt.Felt) (*felt.Felt, *felt.Felt) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}
