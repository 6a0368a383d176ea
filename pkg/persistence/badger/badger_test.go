package badger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defispring/allocation-merkle-go/pkg/logger"
	"github.com/defispring/allocation-merkle-go/pkg/persistence"
)

func newTestLedger(t *testing.T, dir string) *BadgerLedger {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bl, err := NewBadgerLedger(dir, testLogger)
	require.NoError(t, err)
	return bl
}

func sampleRecord(round uint8) *persistence.RoundRootRecord {
	return &persistence.RoundRootRecord{
		Round:            round,
		Root:             fmt.Sprintf("0x%x", 0xf00+int(round)),
		RoundTotal:       "18",
		AccumulatedTotal: "18",
		LeafCount:        3,
		SnapshotID:       "snapshot-a",
		RecordedAt:       1700000000,
	}
}

func TestBadgerLedger_SaveAndLoadRoundRoot(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	record := sampleRecord(1)
	require.NoError(t, bl.SaveRoundRoot(record))

	loaded, err := bl.LoadRoundRoot(1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record, loaded)
}

func TestBadgerLedger_LoadRoundRoot_NotFound(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	loaded, err := bl.LoadRoundRoot(42)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerLedger_SaveRoundRoot_Invalid(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	err := bl.SaveRoundRoot(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil RoundRootRecord")

	err = bl.SaveRoundRoot(&persistence.RoundRootRecord{Round: 1})
	require.Error(t, err)
}

func TestBadgerLedger_ListRoundRoots_Ordering(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	for _, round := range []uint8{200, 9, 10, 1} {
		require.NoError(t, bl.SaveRoundRoot(sampleRecord(round)))
	}

	records, err := bl.ListRoundRoots()
	require.NoError(t, err)
	require.Len(t, records, 4)

	rounds := make([]uint8, len(records))
	for i, r := range records {
		rounds[i] = r.Round
	}
	assert.Equal(t, []uint8{1, 9, 10, 200}, rounds)
}

func TestBadgerLedger_ListRoundRoots_Empty(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	records, err := bl.ListRoundRoots()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBadgerLedger_DeleteRoundRoot(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	require.NoError(t, bl.SaveRoundRoot(sampleRecord(5)))
	require.NoError(t, bl.DeleteRoundRoot(5))
	require.NoError(t, bl.DeleteRoundRoot(5), "delete should be idempotent")

	loaded, err := bl.LoadRoundRoot(5)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerLedger_RefreshState(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	state, err := bl.LoadRefreshState()
	require.NoError(t, err)
	assert.Nil(t, state)

	want := &persistence.RefreshState{SnapshotID: "abc", RefreshedAt: 1700000000, LatestRound: 3, RoundCount: 3}
	require.NoError(t, bl.SaveRefreshState(want))

	state, err = bl.LoadRefreshState()
	require.NoError(t, err)
	assert.Equal(t, want, state)
}

func TestBadgerLedger_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	bl := newTestLedger(t, dir)
	require.NoError(t, bl.SaveRoundRoot(sampleRecord(1)))
	require.NoError(t, bl.SaveRoundRoot(sampleRecord(2)))
	require.NoError(t, bl.Close())

	reopened := newTestLedger(t, dir)
	defer func() { _ = reopened.Close() }()

	require.NoError(t, reopened.HealthCheck())
	records, err := reopened.ListRoundRoots()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, sampleRecord(2), records[1])
}

func TestBadgerLedger_Closed(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	require.NoError(t, bl.HealthCheck())
	require.NoError(t, bl.Close())
	require.NoError(t, bl.Close(), "close should be idempotent")

	err := bl.HealthCheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	assert.Error(t, bl.SaveRoundRoot(sampleRecord(1)))
	_, err = bl.LoadRoundRoot(1)
	assert.Error(t, err)
	assert.Error(t, bl.DeleteRoundRoot(1))
}

func TestBadgerLedger_ConcurrentWrites(t *testing.T) {
	bl := newTestLedger(t, t.TempDir())
	defer func() { _ = bl.Close() }()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(round uint8) {
			defer wg.Done()
			assert.NoError(t, bl.SaveRoundRoot(sampleRecord(round)))
		}(uint8(i))
	}
	wg.Wait()

	records, err := bl.ListRoundRoots()
	require.NoError(t, err)
	assert.Len(t, records, 20)
}
