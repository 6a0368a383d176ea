package allocation

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/merkle"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

var ErrDuplicateRound = errors.New("duplicate round number in raw input")

// RoundTreeData is a round's committed tree plus its totals.
type RoundTreeData struct {
	Round                  uint8
	Tree                   *merkle.MerkleTree
	RoundTotalAmount       types.Amount
	AccumulatedTotalAmount types.Amount
}

// AddressAmount returns the cumulative amount for address, or zero if the
// address has no allocation in this round's tree.
func (r *RoundTreeData) AddressAmount(address types.Address) types.Amount {
	amount, _ := r.Tree.AddressAmount(address)
	return amount
}

// Summary describes the round for listings.
func (r *RoundTreeData) Summary() types.RoundSummary {
	return types.RoundSummary{
		Round:                  r.Round,
		Root:                   r.Tree.RootHex(),
		RoundTotalAmount:       r.RoundTotalAmount.String(),
		AccumulatedTotalAmount: r.AccumulatedTotalAmount.String(),
		LeafCount:              r.Tree.LeafCount(),
	}
}

// TransformResult bundles the built rounds with aggregation statistics.
type TransformResult struct {
	Rounds []*RoundTreeData
	Stats  *AggregationStats
}

// TransformToCumulativeRounds turns raw per-round input into one Merkle tree
// per round, in ascending round order. The input slice is not modified.
func TransformToCumulativeRounds(raw []*types.RoundAmounts, l *zap.Logger) ([]*RoundTreeData, error) {
	res, err := Transform(raw, l)
	if err != nil {
		return nil, err
	}
	return res.Rounds, nil
}

// Transform is TransformToCumulativeRounds that also reports statistics.
func Transform(raw []*types.RoundAmounts, l *zap.Logger) (*TransformResult, error) {
	sorted := make([]*types.RoundAmounts, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Round < sorted[j].Round
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Round == sorted[i].Round {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateRound, sorted[i].Round)
		}
	}

	cumulative, stats := MapCumulativeAmounts(sorted, l)

	rounds := make([]*RoundTreeData, 0, len(cumulative))
	for _, rc := range cumulative {
		if len(rc.CumulativeAmounts) == 0 {
			l.Sugar().Warnw("Round has no usable allocations, not building a tree", "round", rc.Round)
			continue
		}

		allocations := make([]types.CumulativeAllocation, 0, len(rc.CumulativeAmounts))
		for address, amount := range rc.CumulativeAmounts {
			allocations = append(allocations, types.CumulativeAllocation{
				Address:          address,
				CumulativeAmount: amount,
			})
		}

		tree, err := merkle.NewMerkleTree(allocations)
		if err != nil {
			return nil, fmt.Errorf("failed to build merkle tree for round %d: %w", rc.Round, err)
		}

		rounds = append(rounds, &RoundTreeData{
			Round:                  rc.Round,
			Tree:                   tree,
			RoundTotalAmount:       rc.RoundTotal,
			AccumulatedTotalAmount: rc.AccumulatedTotal,
		})

		l.Sugar().Debugw("Built round tree",
			"round", rc.Round,
			"root", tree.RootHex(),
			"leaves", tree.LeafCount(),
			"roundTotal", rc.RoundTotal.String(),
			"accumulatedTotal", rc.AccumulatedTotal.String(),
		)
	}

	return &TransformResult{Rounds: rounds, Stats: stats}, nil
}
