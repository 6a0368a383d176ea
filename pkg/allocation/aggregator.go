package allocation

import (
	"maps"

	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// RoundCumulativeMaps is the aggregator's output for one round.
type RoundCumulativeMaps struct {
	Round uint8
	// CumulativeAmounts is every address seen in this or an earlier round,
	// mapped to its running total.
	CumulativeAmounts map[types.Address]types.Amount
	// RoundAmounts only holds addresses allocated in this round.
	RoundAmounts     map[types.Address]types.Amount
	RoundTotal       types.Amount
	AccumulatedTotal types.Amount
}

// AggregationStats counts inputs the aggregator absorbed instead of failing.
type AggregationStats struct {
	Entries           int
	MalformedAmounts  int
	SkippedAddresses  int
	OverflowedAmounts int
}

// MapCumulativeAmounts folds rounds into running balances. rounds must be in
// ascending round order. A round without raw entries produces no output.
//
// Malformed amounts count as zero. Entries whose address does not parse are
// skipped, and entries that would push a total past 128 bits contribute zero.
// All three are counted in the returned stats and logged.
func MapCumulativeAmounts(rounds []*types.RoundAmounts, l *zap.Logger) ([]*RoundCumulativeMaps, *AggregationStats) {
	stats := &AggregationStats{}
	out := make([]*RoundCumulativeMaps, 0, len(rounds))

	running := make(map[types.Address]types.Amount)
	var accumulated types.Amount

	for _, round := range rounds {
		if len(round.Allocations) == 0 {
			l.Sugar().Debugw("Skipping round without allocations", "round", round.Round)
			continue
		}

		current := make(map[types.Address]types.Amount)
		var roundTotal types.Amount

		for _, entry := range round.Allocations {
			stats.Entries++

			address, err := types.ParseAddress(entry.Address)
			if err != nil {
				stats.SkippedAddresses++
				l.Sugar().Warnw("Skipping allocation with invalid address",
					"round", round.Round, "address", entry.Address, "error", err)
				continue
			}

			amount, ok := types.ParseAmountOrZero(entry.Amount)
			if !ok {
				stats.MalformedAmounts++
				l.Sugar().Warnw("Treating malformed allocation amount as zero",
					"round", round.Round, "address", address.Hex(), "amount", entry.Amount)
			}

			// Every per-address balance and round total is bounded by the
			// accumulated total, so checking that one sum covers all of them.
			newAccumulated, ok := accumulated.CheckedAdd(amount)
			if !ok {
				stats.OverflowedAmounts++
				l.Sugar().Warnw("Ignoring allocation amount that overflows 128 bits",
					"round", round.Round, "address", address.Hex(), "amount", entry.Amount)
				amount = types.Amount{}
				newAccumulated = accumulated
			}
			accumulated = newAccumulated

			current[address] = mustAdd(current[address], amount)
			running[address] = mustAdd(running[address], amount)
			roundTotal = mustAdd(roundTotal, amount)
		}

		out = append(out, &RoundCumulativeMaps{
			Round:             round.Round,
			CumulativeAmounts: maps.Clone(running),
			RoundAmounts:      current,
			RoundTotal:        roundTotal,
			AccumulatedTotal:  accumulated,
		})
	}

	return out, stats
}

func mustAdd(a, b types.Amount) types.Amount {
	sum, ok := a.CheckedAdd(b)
	if !ok {
		panic("allocation total overflow after bound check")
	}
	return sum
}
