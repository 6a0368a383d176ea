package persistence

// IRootLedger records the Merkle roots the service has published.
// All implementations must be thread-safe; the snapshot repository writes
// from refreshes while the HTTP layer may read concurrently.
//
// The ledger never stores allocation data. It exists so that a root which
// changes for an already published round is noticed across restarts.
type IRootLedger interface {
	// Round roots

	// SaveRoundRoot persists the record for record.Round, overwriting any
	// existing record for that round.
	SaveRoundRoot(record *RoundRootRecord) error

	// LoadRoundRoot retrieves the record for a round.
	// Returns nil if none exists, error only on storage failure.
	LoadRoundRoot(round uint8) (*RoundRootRecord, error)

	// ListRoundRoots returns all records sorted by round (ascending).
	// Returns empty slice if no records exist, error only on storage failure.
	ListRoundRoots() ([]*RoundRootRecord, error)

	// DeleteRoundRoot removes the record for a round.
	// Idempotent - returns nil if the record doesn't exist.
	DeleteRoundRoot(round uint8) error

	// Refresh bookkeeping

	// SaveRefreshState overwrites the state of the last successful refresh.
	SaveRefreshState(state *RefreshState) error

	// LoadRefreshState returns nil state if no refresh was ever recorded.
	LoadRefreshState() (*RefreshState, error)

	// Lifecycle Management

	// Close cleanly shuts down the ledger.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the ledger is operational.
	HealthCheck() error
}
