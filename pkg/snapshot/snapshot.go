package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/defispring/allocation-merkle-go/pkg/allocation"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

var ErrNoRoundData = errors.New("no data available")

// Snapshot is an immutable set of round trees built by one refresh.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Source    string

	// Rounds is sorted by round number, ascending, when built by a
	// Repository. Lookups do not depend on that order.
	Rounds []*allocation.RoundTreeData
	Stats  *allocation.AggregationStats
}

// Resolve selects the tree for a round. Round 0 means the highest round
// present. Zero or several trees for the selected round is ErrNoRoundData.
func (s *Snapshot) Resolve(round uint8) (*allocation.RoundTreeData, error) {
	if len(s.Rounds) == 0 {
		return nil, ErrNoRoundData
	}

	if round == 0 {
		round = s.LatestRound()
	}

	var found *allocation.RoundTreeData
	for _, rd := range s.Rounds {
		if rd.Round != round {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: round %d is ambiguous", ErrNoRoundData, round)
		}
		found = rd
	}
	if found == nil {
		return nil, fmt.Errorf("%w: round %d", ErrNoRoundData, round)
	}
	return found, nil
}

// LatestRound returns the highest round number, or 0 if there are none.
func (s *Snapshot) LatestRound() uint8 {
	var latest uint8
	for _, rd := range s.Rounds {
		latest = max(latest, rd.Round)
	}
	return latest
}

// Summaries lists every round, ascending.
func (s *Snapshot) Summaries() []types.RoundSummary {
	out := make([]types.RoundSummary, len(s.Rounds))
	for i, rd := range s.Rounds {
		out[i] = rd.Summary()
	}
	return out
}
