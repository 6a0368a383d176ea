package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/defispring/allocation-merkle-go/pkg/persistence"
)

// MemoryLedger is an in-memory implementation of IRootLedger.
// Records are lost when the process exits, so drift detection only spans
// refreshes within one process lifetime.
//
// Thread-safe using sync.RWMutex. Records are copied on the way in and out
// to prevent external mutation.
type MemoryLedger struct {
	mu sync.RWMutex

	// Round roots: round -> record
	roots map[uint8]*persistence.RoundRootRecord

	refresh *persistence.RefreshState

	closed bool
}

// NewMemoryLedger creates a new in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	fmt.Println("WARNING: Using in-memory root ledger - published roots are forgotten on restart")
	fmt.Println("Set ALLOC_LEDGER_TYPE=badger or ALLOC_LEDGER_TYPE=redis to detect root drift across restarts")

	return &MemoryLedger{
		roots: make(map[uint8]*persistence.RoundRootRecord),
	}
}

// SaveRoundRoot stores a copy of the record
func (m *MemoryLedger) SaveRoundRoot(record *persistence.RoundRootRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil RoundRootRecord")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid RoundRootRecord: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	cp := *record
	m.roots[record.Round] = &cp
	return nil
}

// LoadRoundRoot returns a copy of the record for round
func (m *MemoryLedger) LoadRoundRoot(round uint8) (*persistence.RoundRootRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, ok := m.roots[round]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

// ListRoundRoots returns all records sorted by round
func (m *MemoryLedger) ListRoundRoots() ([]*persistence.RoundRootRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := make([]*persistence.RoundRootRecord, 0, len(m.roots))
	for _, record := range m.roots {
		cp := *record
		records = append(records, &cp)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Round < records[j].Round
	})

	return records, nil
}

// DeleteRoundRoot removes the record for round
func (m *MemoryLedger) DeleteRoundRoot(round uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.roots, round)
	return nil
}

// SaveRefreshState stores a copy of the refresh state
func (m *MemoryLedger) SaveRefreshState(state *persistence.RefreshState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil RefreshState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	cp := *state
	m.refresh = &cp
	return nil
}

// LoadRefreshState returns a copy of the refresh state
func (m *MemoryLedger) LoadRefreshState() (*persistence.RefreshState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	if m.refresh == nil {
		return nil, nil
	}
	cp := *m.refresh
	return &cp, nil
}

// Close marks the ledger as closed
func (m *MemoryLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the ledger is open
func (m *MemoryLedger) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
