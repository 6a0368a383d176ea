package types

// RawAllocation is one entry of a round's input file as found on disk.
// Both fields are kept textual; parsing is the aggregator's job.
type RawAllocation struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// RoundAmounts is the raw input of a single round. Rounds are numbered from 1.
type RoundAmounts struct {
	Round       uint8           `json:"round"`
	Allocations []RawAllocation `json:"allocations"`
}

// CumulativeAllocation is an address's running total as of some round.
type CumulativeAllocation struct {
	Address          Address `json:"address"`
	CumulativeAmount Amount  `json:"cumulative_amount"`
}

// CalldataProof is what an on-chain claim needs: the cumulative amount and
// the sibling hashes ordered leaf-first.
type CalldataProof struct {
	Amount string   `json:"amount"`
	Proof  []string `json:"proof"`
}

// RoundSummary describes one published round.
type RoundSummary struct {
	Round                  uint8  `json:"round"`
	Root                   string `json:"root"`
	RoundTotalAmount       string `json:"round_total_amount"`
	AccumulatedTotalAmount string `json:"accumulated_total_amount"`
	LeafCount              int    `json:"leaf_count"`
}

// RefreshResult is returned by the admin refresh endpoint.
type RefreshResult struct {
	SnapshotID  string `json:"snapshot_id"`
	Rounds      int    `json:"rounds"`
	LatestRound uint8  `json:"latest_round"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
