package persistence

import (
	"fmt"
	"time"
)

// RoundRootRecord is the audit entry for one published round.
type RoundRootRecord struct {
	Round uint8 `json:"round"`

	// Root is the canonical hex encoding of the round's Merkle root.
	Root string `json:"root"`

	// RoundTotal and AccumulatedTotal are decimal strings.
	RoundTotal       string `json:"roundTotal"`
	AccumulatedTotal string `json:"accumulatedTotal"`

	LeafCount int `json:"leafCount"`

	// SnapshotID identifies the refresh that first published this root.
	SnapshotID string `json:"snapshotId"`

	// RecordedAt is the Unix timestamp of the write.
	RecordedAt int64 `json:"recordedAt"`
}

// Validate checks the fields every backend relies on.
func (r *RoundRootRecord) Validate() error {
	if r.Round == 0 {
		return fmt.Errorf("round must be greater than zero")
	}
	if r.Root == "" {
		return fmt.Errorf("root cannot be empty")
	}
	return nil
}

// RefreshState describes the last successful refresh.
type RefreshState struct {
	SnapshotID  string `json:"snapshotId"`
	RefreshedAt int64  `json:"refreshedAt"`
	LatestRound uint8  `json:"latestRound"`
	RoundCount  int    `json:"roundCount"`
}

// Age reports how long ago the refresh happened.
func (rs *RefreshState) Age(now time.Time) time.Duration {
	if rs == nil || rs.RefreshedAt == 0 {
		return 0
	}
	return now.Sub(time.Unix(rs.RefreshedAt, 0))
}
