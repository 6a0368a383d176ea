package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixRoundRoot   = "root:"
	keyRefreshState      = "refresh:last"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerLedger is a disk-backed root ledger using Badger.
type BadgerLedger struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerLedger opens (or creates) a Badger database at dataPath with
// SyncWrites enabled, and starts a background value-log GC goroutine.
func NewBadgerLedger(dataPath string, logger *zap.Logger) (*BadgerLedger, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bl := &BadgerLedger{
		db:     db,
		logger: logger,
	}

	if err := bl.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bl.gcCancel = cancel
	bl.gcWg.Add(1)
	go bl.runGC(ctx)

	logger.Sugar().Infow("Badger root ledger initialized", "path", absPath)

	return bl, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerLedger) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerLedger) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// roundKey zero-pads so lexical key order matches round order.
func roundKey(round uint8) []byte {
	return []byte(fmt.Sprintf("%s%03d", keyPrefixRoundRoot, round))
}

// get copies the value stored at key, returning nil if the key is absent.
func (b *BadgerLedger) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	return data, err
}

// SaveRoundRoot persists a round root record
func (b *BadgerLedger) SaveRoundRoot(record *persistence.RoundRootRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil RoundRootRecord")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid RoundRootRecord: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalRoundRootRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRootRecord: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(roundKey(record.Round), data)
	})
}

// LoadRoundRoot retrieves a round root record
func (b *BadgerLedger) LoadRoundRoot(round uint8) (*persistence.RoundRootRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get(roundKey(round))
	if err != nil {
		return nil, fmt.Errorf("failed to load RoundRootRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	record, err := persistence.UnmarshalRoundRootRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RoundRootRecord: %w", err)
	}

	return record, nil
}

// ListRoundRoots returns all round root records sorted by round
func (b *BadgerLedger) ListRoundRoots() ([]*persistence.RoundRootRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := []*persistence.RoundRootRecord{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRoundRoot)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalRoundRootRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal RoundRootRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			records = append(records, record)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list RoundRootRecords: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Round < records[j].Round
	})

	return records, nil
}

// DeleteRoundRoot removes a round root record
func (b *BadgerLedger) DeleteRoundRoot(round uint8) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(roundKey(round))
	})
}

// SaveRefreshState persists the state of the last refresh
func (b *BadgerLedger) SaveRefreshState(state *persistence.RefreshState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil RefreshState")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalRefreshState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal RefreshState: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyRefreshState), data)
	})
}

// LoadRefreshState retrieves the state of the last refresh
func (b *BadgerLedger) LoadRefreshState() (*persistence.RefreshState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get([]byte(keyRefreshState))
	if err != nil {
		return nil, fmt.Errorf("failed to load RefreshState: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	state, err := persistence.UnmarshalRefreshState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RefreshState: %w", err)
	}

	return state, nil
}

// Close shuts down the ledger
func (b *BadgerLedger) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger root ledger closed")
	return nil
}

// HealthCheck verifies the ledger is operational
func (b *BadgerLedger) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
