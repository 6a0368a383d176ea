package redis

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defispring/allocation-merkle-go/pkg/logger"
	"github.com/defispring/allocation-merkle-go/pkg/persistence"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis returns a ledger isolated under a random key prefix, or skips
// the test when no Redis server is reachable.
func requireRedis(t *testing.T) *RedisLedger {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: fmt.Sprintf("test-%s:", uuid.NewString()),
	}

	rl, err := NewRedisLedger(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	t.Cleanup(func() { _ = rl.Close() })
	return rl
}

func sampleRecord(round uint8) *persistence.RoundRootRecord {
	return &persistence.RoundRootRecord{
		Round:            round,
		Root:             fmt.Sprintf("0x%x", 0xbeef+int(round)),
		RoundTotal:       "7",
		AccumulatedTotal: "30",
		LeafCount:        2,
		SnapshotID:       "snapshot-r",
		RecordedAt:       time.Now().Unix(),
	}
}

func TestNewRedisLedger_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisLedger(nil, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewRedisLedger(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}

func TestRedisLedger_SaveAndLoadRoundRoot(t *testing.T) {
	rl := requireRedis(t)

	record := sampleRecord(1)
	require.NoError(t, rl.SaveRoundRoot(record))

	loaded, err := rl.LoadRoundRoot(1)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)

	missing, err := rl.LoadRoundRoot(2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisLedger_ListAndDelete(t *testing.T) {
	rl := requireRedis(t)

	for _, round := range []uint8{12, 3, 7} {
		require.NoError(t, rl.SaveRoundRoot(sampleRecord(round)))
	}

	records, err := rl.ListRoundRoots()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, uint8(3), records[0].Round)
	assert.Equal(t, uint8(7), records[1].Round)
	assert.Equal(t, uint8(12), records[2].Round)

	require.NoError(t, rl.DeleteRoundRoot(7))
	require.NoError(t, rl.DeleteRoundRoot(7))

	records, err = rl.ListRoundRoots()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRedisLedger_RefreshState(t *testing.T) {
	rl := requireRedis(t)

	state, err := rl.LoadRefreshState()
	require.NoError(t, err)
	assert.Nil(t, state)

	want := &persistence.RefreshState{SnapshotID: "x", RefreshedAt: 5, LatestRound: 2, RoundCount: 2}
	require.NoError(t, rl.SaveRefreshState(want))

	state, err = rl.LoadRefreshState()
	require.NoError(t, err)
	assert.Equal(t, want, state)
}

func TestRedisLedger_Closed(t *testing.T) {
	rl := requireRedis(t)
	require.NoError(t, rl.HealthCheck())

	require.NoError(t, rl.Close())
	require.NoError(t, rl.Close())

	assert.Error(t, rl.HealthCheck())
	assert.Error(t, rl.SaveRoundRoot(sampleRecord(1)))
}
