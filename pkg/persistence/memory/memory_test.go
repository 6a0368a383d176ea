package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defispring/allocation-merkle-go/pkg/persistence"
)

func sampleRecord(round uint8) *persistence.RoundRootRecord {
	return &persistence.RoundRootRecord{
		Round:            round,
		Root:             fmt.Sprintf("0x%x", 0xabc0+int(round)),
		RoundTotal:       "23",
		AccumulatedTotal: "41",
		LeafCount:        3,
		SnapshotID:       "snapshot-1",
		RecordedAt:       1700000000,
	}
}

func TestMemoryLedger_SaveAndLoadRoundRoot(t *testing.T) {
	ml := NewMemoryLedger()
	defer func() { _ = ml.Close() }()

	record := sampleRecord(2)
	require.NoError(t, ml.SaveRoundRoot(record))

	loaded, err := ml.LoadRoundRoot(2)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record, loaded)

	// Mutating the returned copy must not leak into the ledger.
	loaded.Root = "0xbad"
	again, err := ml.LoadRoundRoot(2)
	require.NoError(t, err)
	assert.Equal(t, record.Root, again.Root)
}

func TestMemoryLedger_LoadRoundRoot_NotFound(t *testing.T) {
	ml := NewMemoryLedger()
	defer func() { _ = ml.Close() }()

	loaded, err := ml.LoadRoundRoot(9)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryLedger_SaveRoundRoot_Invalid(t *testing.T) {
	ml := NewMemoryLedger()
	defer func() { _ = ml.Close() }()

	err := ml.SaveRoundRoot(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil RoundRootRecord")

	err = ml.SaveRoundRoot(&persistence.RoundRootRecord{Round: 0, Root: "0x1"})
	require.Error(t, err)
}

func TestMemoryLedger_ListAndDelete(t *testing.T) {
	ml := NewMemoryLedger()
	defer func() { _ = ml.Close() }()

	for _, round := range []uint8{3, 1, 2} {
		require.NoError(t, ml.SaveRoundRoot(sampleRecord(round)))
	}

	records, err := ml.ListRoundRoots()
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, uint8(i+1), record.Round)
	}

	require.NoError(t, ml.DeleteRoundRoot(2))
	require.NoError(t, ml.DeleteRoundRoot(2), "delete should be idempotent")

	records, err = ml.ListRoundRoots()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint8(1), records[0].Round)
	assert.Equal(t, uint8(3), records[1].Round)
}

func TestMemoryLedger_RefreshState(t *testing.T) {
	ml := NewMemoryLedger()
	defer func() { _ = ml.Close() }()

	state, err := ml.LoadRefreshState()
	require.NoError(t, err)
	assert.Nil(t, state)

	want := &persistence.RefreshState{SnapshotID: "s", RefreshedAt: 10, LatestRound: 4, RoundCount: 4}
	require.NoError(t, ml.SaveRefreshState(want))

	state, err = ml.LoadRefreshState()
	require.NoError(t, err)
	assert.Equal(t, want, state)
}

func TestMemoryLedger_Closed(t *testing.T) {
	ml := NewMemoryLedger()
	require.NoError(t, ml.Close())
	require.NoError(t, ml.Close(), "close should be idempotent")

	assert.Error(t, ml.HealthCheck())
	assert.Error(t, ml.SaveRoundRoot(sampleRecord(1)))
	_, err := ml.LoadRoundRoot(1)
	assert.Error(t, err)
	_, err = ml.ListRoundRoots()
	assert.Error(t, err)
	assert.Error(t, ml.SaveRefreshState(&persistence.RefreshState{}))
}

func TestMemoryLedger_Concurrent(t *testing.T) {
	ml := NewMemoryLedger()
	defer func() { _ = ml.Close() }()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(round uint8) {
			defer wg.Done()
			_ = ml.SaveRoundRoot(sampleRecord(round))
			_, _ = ml.LoadRoundRoot(round)
			_, _ = ml.ListRoundRoots()
		}(uint8(i))
	}
	wg.Wait()

	records, err := ml.ListRoundRoots()
	require.NoError(t, err)
	assert.Len(t, records, 50)
}
