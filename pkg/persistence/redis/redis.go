package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixRoundRoot   = "alloc:root:"
	keyRefreshState      = "alloc:refresh:last"
	keySchemaVersion     = "alloc:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no prefix iteration, so rounds are tracked in a set.
	keySetRoundRoots = "alloc:roots:index"

	operationTimeout = 5 * time.Second
)

// RedisLedger is a root ledger backed by Redis, for deployments where
// several replicas must agree on what has been published.
type RedisLedger struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "mainnet:" gives
	// "mainnet:alloc:root:1". Empty means keys start at "alloc:".
	KeyPrefix string
}

// NewRedisLedger connects to Redis and initializes the schema version.
func NewRedisLedger(cfg *RedisConfig, logger *zap.Logger) (*RedisLedger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rl := &RedisLedger{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rl.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis root ledger initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rl, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisLedger) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisLedger) roundKey(round uint8) string {
	return r.prefixKey(fmt.Sprintf("%s%d", keyPrefixRoundRoot, round))
}

// initSchema initializes or validates the schema version
func (r *RedisLedger) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveRoundRoot persists a round root record and indexes its round
func (r *RedisLedger) SaveRoundRoot(record *persistence.RoundRootRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil RoundRootRecord")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid RoundRootRecord: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := persistence.MarshalRoundRootRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRootRecord: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.roundKey(record.Round), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetRoundRoots), int(record.Round))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save RoundRootRecord: %w", err)
	}

	return nil
}

// LoadRoundRoot retrieves a round root record
func (r *RedisLedger) LoadRoundRoot(round uint8) (*persistence.RoundRootRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.roundKey(round)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load RoundRootRecord: %w", err)
	}

	record, err := persistence.UnmarshalRoundRootRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RoundRootRecord: %w", err)
	}

	return record, nil
}

// ListRoundRoots returns all round root records sorted by round
func (r *RedisLedger) ListRoundRoots() ([]*persistence.RoundRootRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetRoundRoots)

	rounds, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list RoundRootRecord rounds: %w", err)
	}

	if len(rounds) == 0 {
		return []*persistence.RoundRootRecord{}, nil
	}

	keys := make([]string, len(rounds))
	for i, round := range rounds {
		keys[i] = r.prefixKey(keyPrefixRoundRoot + round)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch RoundRootRecords: %w", err)
	}

	records := make([]*persistence.RoundRootRecord, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Indexed but missing: drop the stale index entry.
			r.client.SRem(ctx, indexKey, rounds[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for RoundRootRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalRoundRootRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal RoundRootRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Round < records[j].Round
	})

	return records, nil
}

// DeleteRoundRoot removes a round root record
func (r *RedisLedger) DeleteRoundRoot(round uint8) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.roundKey(round))
	pipe.SRem(ctx, r.prefixKey(keySetRoundRoots), int(round))

	_, err := pipe.Exec(ctx)
	return err
}

// SaveRefreshState persists the state of the last refresh
func (r *RedisLedger) SaveRefreshState(state *persistence.RefreshState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil RefreshState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := persistence.MarshalRefreshState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal RefreshState: %w", err)
	}

	return r.client.Set(ctx, r.prefixKey(keyRefreshState), data, 0).Err()
}

// LoadRefreshState retrieves the state of the last refresh
func (r *RedisLedger) LoadRefreshState() (*persistence.RefreshState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyRefreshState)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load RefreshState: %w", err)
	}

	state, err := persistence.UnmarshalRefreshState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RefreshState: %w", err)
	}

	return state, nil
}

// Close shuts down the ledger
func (r *RedisLedger) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis root ledger closed")
	return nil
}

// HealthCheck verifies the ledger is operational
func (r *RedisLedger) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
