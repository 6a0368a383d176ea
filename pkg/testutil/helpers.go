package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/defispring/allocation-merkle-go/pkg/crypto"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// BuildRoundArchive zips allocations as a single JSON file, the layout the
// ingest sources expect.
func BuildRoundArchive(t *testing.T, allocations []types.RawAllocation) []byte {
	t.Helper()
	payload, err := json.Marshal(allocations)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("allocations.json")
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// WriteRoundArchive writes raw_<round>.zip into dir and returns its path.
func WriteRoundArchive(t *testing.T, dir string, round uint8, allocations []types.RawAllocation) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("raw_%d.zip", round))
	require.NoError(t, os.WriteFile(path, BuildRoundArchive(t, allocations), 0o644))
	return path
}

// CreateTestAllocations creates n allocations with addresses 0x1..0xn and
// amounts base, base+1, ...
func CreateTestAllocations(n int, base uint64) []types.RawAllocation {
	allocs := make([]types.RawAllocation, n)
	for i := 0; i < n; i++ {
		allocs[i] = types.RawAllocation{
			Address: fmt.Sprintf("0x%x", i+1),
			Amount:  fmt.Sprintf("%d", base+uint64(i)),
		}
	}
	return allocs
}

// VerifyCalldata recomputes the root from calldata the way an on-chain
// verifier does and compares it with root.
func VerifyCalldata(t *testing.T, root string, address string, calldata *types.CalldataProof) bool {
	t.Helper()
	addr, err := types.ParseAddress(address)
	require.NoError(t, err)

	amountInt, ok := new(big.Int).SetString(calldata.Amount, 0)
	require.True(t, ok, "amount %q is not a number", calldata.Amount)
	amount, err := types.ParseAmount(amountInt.String())
	require.NoError(t, err)

	current := crypto.HashLeaf(addr, amount)
	for _, sibling := range calldata.Proof {
		s, err := new(felt.Felt).SetString(sibling)
		require.NoError(t, err)
		current = crypto.HashPair(current, s)
	}
	return types.FormatFelt(current) == root
}
