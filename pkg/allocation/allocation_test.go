package allocation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

const maxAmount = "340282366920938463463374607431768211455"

func round(n uint8, entries ...string) *types.RoundAmounts {
	r := &types.RoundAmounts{Round: n, Allocations: []types.RawAllocation{}}
	for i := 0; i+1 < len(entries); i += 2 {
		r.Allocations = append(r.Allocations, types.RawAllocation{Address: entries[i], Amount: entries[i+1]})
	}
	return r
}

func amount(v uint64) types.Amount {
	return types.AmountFromUint64(v)
}

func addr(s string) types.Address {
	return types.MustParseAddress(s)
}

func TestMapCumulativeAmounts(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(1, "0x1", "5", "0x2", "6", "0x3", "7"),
		round(2, "0x3", "23"),
	}

	out, stats := MapCumulativeAmounts(raw, zap.NewNop())
	require.Len(t, out, 2)
	assert.Equal(t, 4, stats.Entries)
	assert.Zero(t, stats.MalformedAmounts)

	first := out[0]
	assert.Equal(t, uint8(1), first.Round)
	assert.Equal(t, amount(18), first.RoundTotal)
	assert.Equal(t, amount(18), first.AccumulatedTotal)
	assert.Len(t, first.CumulativeAmounts, 3)

	second := out[1]
	assert.Equal(t, amount(23), second.RoundTotal)
	assert.Equal(t, amount(41), second.AccumulatedTotal)
	assert.Equal(t, amount(30), second.CumulativeAmounts[addr("0x3")])
	assert.Equal(t, amount(5), second.CumulativeAmounts[addr("0x1")])
	assert.Len(t, second.RoundAmounts, 1)
	assert.Equal(t, amount(23), second.RoundAmounts[addr("0x3")])

	// Earlier outputs are snapshots, not views of the running map.
	assert.Equal(t, amount(7), first.CumulativeAmounts[addr("0x3")])
}

func TestMapCumulativeAmounts_CanonicalAddresses(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(1, "0x0A", "1", "10", "2", "0x000a", "3"),
	}

	out, _ := MapCumulativeAmounts(raw, zap.NewNop())
	require.Len(t, out, 1)
	require.Len(t, out[0].CumulativeAmounts, 1)
	assert.Equal(t, amount(6), out[0].CumulativeAmounts[addr("0xa")])
}

func TestMapCumulativeAmounts_AbsorbedErrors(t *testing.T) {
	tests := []struct {
		name        string
		raw         []*types.RoundAmounts
		wantTotal   types.Amount
		wantStats   AggregationStats
		wantBalance map[string]types.Amount
	}{
		{
			name:        "malformed amount counts as zero",
			raw:         []*types.RoundAmounts{round(1, "0x1", "abc", "0x2", "4")},
			wantTotal:   amount(4),
			wantStats:   AggregationStats{Entries: 2, MalformedAmounts: 1},
			wantBalance: map[string]types.Amount{"0x1": amount(0), "0x2": amount(4)},
		},
		{
			name:        "invalid address is skipped",
			raw:         []*types.RoundAmounts{round(1, "zzz", "10", "0x2", "4")},
			wantTotal:   amount(4),
			wantStats:   AggregationStats{Entries: 2, SkippedAddresses: 1},
			wantBalance: map[string]types.Amount{"0x2": amount(4)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := MapCumulativeAmounts(tt.raw, zap.NewNop())
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantStats, *stats)

			assert.Equal(t, tt.wantTotal, out[0].RoundTotal)
			for a, want := range tt.wantBalance {
				got, ok := out[0].CumulativeAmounts[addr(a)]
				assert.True(t, ok, "address %s should be present", a)
				assert.Equal(t, want, got, "balance of %s", a)
			}
		})
	}
}

func TestMapCumulativeAmounts_OverflowKeepsTotalsConsistent(t *testing.T) {
	raw := []*types.RoundAmounts{round(1, "0x1", maxAmount, "0x2", "1")}

	out, stats := MapCumulativeAmounts(raw, zap.NewNop())
	require.Len(t, out, 1)
	assert.Equal(t, AggregationStats{Entries: 2, OverflowedAmounts: 1}, *stats)

	largest, err := types.ParseAmount(maxAmount)
	require.NoError(t, err)
	assert.Equal(t, largest, out[0].RoundTotal)
	assert.Equal(t, largest, out[0].AccumulatedTotal)
	assert.Equal(t, largest, out[0].CumulativeAmounts[addr("0x1")])

	zero, present := out[0].CumulativeAmounts[addr("0x2")]
	assert.True(t, present)
	assert.True(t, zero.IsZero())
}

func TestMapCumulativeAmounts_EmptyRoundNotEmitted(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(1, "0x1", "5"),
		round(2),
		round(3, "0x2", "7"),
	}

	out, _ := MapCumulativeAmounts(raw, zap.NewNop())
	require.Len(t, out, 2)
	assert.Equal(t, uint8(1), out[0].Round)
	assert.Equal(t, uint8(3), out[1].Round)
	assert.Equal(t, amount(12), out[1].AccumulatedTotal)
}

func TestTransformToCumulativeRounds(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(2, "0x3", "23"),
		round(1, "0x1", "5", "0x2", "6", "0x3", "7"),
	}
	before := []uint8{raw[0].Round, raw[1].Round}

	rounds, err := TransformToCumulativeRounds(raw, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, rounds, 2)

	assert.Equal(t, before, []uint8{raw[0].Round, raw[1].Round}, "input must not be reordered")

	r1, r2 := rounds[0], rounds[1]
	assert.Equal(t, uint8(1), r1.Round)
	assert.Equal(t, uint8(2), r2.Round)

	assert.Equal(t, amount(18), r1.RoundTotalAmount)
	assert.Equal(t, amount(18), r1.AccumulatedTotalAmount)
	assert.Equal(t, amount(23), r2.RoundTotalAmount)
	assert.Equal(t, amount(41), r2.AccumulatedTotalAmount)

	assert.Equal(t, amount(7), r1.AddressAmount(addr("0x3")))
	assert.Equal(t, amount(30), r2.AddressAmount(addr("0x3")))
	assert.Equal(t, amount(5), r2.AddressAmount(addr("0x1")))
	assert.True(t, r2.AddressAmount(addr("0x99")).IsZero())

	calldata, err := r2.Tree.AddressCalldata("0x3")
	require.NoError(t, err)
	assert.Equal(t, "0x1e", calldata.Amount)

	assert.Equal(t, 3, r2.Tree.LeafCount())
	assert.NotEqual(t, r1.Tree.RootHex(), r2.Tree.RootHex())

	summary := r2.Summary()
	assert.Equal(t, uint8(2), summary.Round)
	assert.Equal(t, r2.Tree.RootHex(), summary.Root)
	assert.Equal(t, "23", summary.RoundTotalAmount)
	assert.Equal(t, "41", summary.AccumulatedTotalAmount)
	assert.Equal(t, 3, summary.LeafCount)
}

func TestTransformToCumulativeRounds_Empty(t *testing.T) {
	rounds, err := TransformToCumulativeRounds(nil, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestTransformToCumulativeRounds_DuplicateRound(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(1, "0x1", "5"),
		round(1, "0x2", "6"),
	}

	_, err := TransformToCumulativeRounds(raw, zap.NewNop())
	require.ErrorIs(t, err, ErrDuplicateRound)
}

func TestTransformToCumulativeRounds_SkipsRoundsWithoutUsableAllocations(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(1, "not-an-address", "5"),
		round(2),
		round(3, "0x1", "5"),
	}

	res, err := Transform(raw, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, uint8(3), res.Rounds[0].Round)
	assert.Equal(t, 1, res.Stats.SkippedAddresses)
}

func TestTransformToCumulativeRounds_Monotonic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	addresses := make([]string, 20)
	for i := range addresses {
		addresses[i] = fmt.Sprintf("0x%x", 0xabc0+i)
	}

	var raw []*types.RoundAmounts
	for n := uint8(1); n <= 8; n++ {
		rd := round(n)
		for i := 0; i < 10; i++ {
			rd.Allocations = append(rd.Allocations, types.RawAllocation{
				Address: addresses[r.Intn(len(addresses))],
				Amount:  fmt.Sprintf("%d", r.Intn(1000)),
			})
		}
		raw = append(raw, rd)
	}

	rounds, err := TransformToCumulativeRounds(raw, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, rounds, 8)

	var accumulated types.Amount
	for i, rd := range rounds {
		var ok bool
		accumulated, ok = accumulated.CheckedAdd(rd.RoundTotalAmount)
		require.True(t, ok)
		assert.Equal(t, accumulated, rd.AccumulatedTotalAmount, "round %d", rd.Round)

		if i == 0 {
			continue
		}
		prev := rounds[i-1]
		for _, alloc := range prev.Tree.Allocations {
			assert.GreaterOrEqual(t, rd.AddressAmount(alloc.Address).Cmp(alloc.CumulativeAmount), 0,
				"balance of %s decreased in round %d", alloc.Address.Hex(), rd.Round)
			assert.True(t, rd.Tree.Contains(alloc.Address))
		}
	}
}

func TestTransformToCumulativeRounds_Deterministic(t *testing.T) {
	raw := []*types.RoundAmounts{
		round(1, "0x1", "5", "0x2", "6", "0x3", "7"),
		round(2, "0x3", "23", "0x4", "1"),
	}
	reordered := []*types.RoundAmounts{
		round(2, "0x4", "1", "0x3", "23"),
		round(1, "0x3", "7", "0x1", "5", "0x2", "6"),
	}

	a, err := TransformToCumulativeRounds(raw, zap.NewNop())
	require.NoError(t, err)
	b, err := TransformToCumulativeRounds(reordered, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Tree.RootHex(), b[i].Tree.RootHex())
	}
}
