package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/allocation"
	"github.com/defispring/allocation-merkle-go/pkg/merkle"
	"github.com/defispring/allocation-merkle-go/pkg/metrics"
	"github.com/defispring/allocation-merkle-go/pkg/persistence"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

var (
	ErrNoSnapshot       = errors.New("no allocation data found")
	ErrRootDrift        = errors.New("root differs from previously published root")
	ErrRepositoryClosed = errors.New("repository is closed")
)

// Loader supplies raw round input. ingest.Source implementations satisfy it.
type Loader interface {
	Name() string
	Load(ctx context.Context) ([]*types.RoundAmounts, error)
}

// RepositoryConfig configures a Repository.
type RepositoryConfig struct {
	Loader Loader

	// Ledger is optional. Without it roots are not compared across refreshes.
	Ledger persistence.IRootLedger

	// RejectRootDrift makes a refresh fail instead of publishing a round whose
	// root differs from the one recorded in the ledger.
	RejectRootDrift bool

	Logger *zap.Logger
}

// Repository holds the current snapshot and serves read queries from it.
// Reads share a lock; a refresh builds its snapshot without holding the
// lock and only takes it to swap the pointer.
type Repository struct {
	mu      sync.RWMutex
	current *Snapshot
	closed  bool

	// refreshMu serializes refreshes.
	refreshMu sync.Mutex

	loader          Loader
	ledger          persistence.IRootLedger
	rejectRootDrift bool
	logger          *zap.Logger
}

func NewRepository(cfg *RepositoryConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Repository{
		loader:          cfg.Loader,
		ledger:          cfg.Ledger,
		rejectRootDrift: cfg.RejectRootDrift,
		logger:          cfg.Logger,
	}, nil
}

// Refresh loads raw input, rebuilds every round and swaps in the result.
// On failure the previous snapshot stays in place.
func (r *Repository) Refresh(ctx context.Context) (*Snapshot, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.isClosed() {
		return nil, ErrRepositoryClosed
	}

	start := time.Now()
	snap, err := r.build(ctx)
	metrics.SnapshotRefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotRefreshTotal.WithLabelValues("failure").Inc()
		r.logger.Sugar().Errorw("Snapshot refresh failed, keeping previous snapshot",
			"source", r.loader.Name(), "error", err)
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRepositoryClosed
	}
	r.current = snap
	r.mu.Unlock()

	r.recordRoots(snap)
	r.observe(snap)

	r.logger.Sugar().Infow("Snapshot refreshed",
		"snapshotId", snap.ID,
		"source", snap.Source,
		"rounds", len(snap.Rounds),
		"latestRound", snap.LatestRound(),
		"duration", time.Since(start),
	)

	return snap, nil
}

func (r *Repository) build(ctx context.Context) (*Snapshot, error) {
	raw, err := r.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw allocations from %s: %w", r.loader.Name(), err)
	}

	res, err := allocation.Transform(raw, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build round trees: %w", err)
	}

	if err := r.checkRootDrift(res.Rounds); err != nil {
		return nil, err
	}

	return &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Source:    r.loader.Name(),
		Rounds:    res.Rounds,
		Stats:     res.Stats,
	}, nil
}

// checkRootDrift compares freshly built roots with the ledger.
func (r *Repository) checkRootDrift(rounds []*allocation.RoundTreeData) error {
	if r.ledger == nil {
		return nil
	}

	for _, rd := range rounds {
		record, err := r.ledger.LoadRoundRoot(rd.Round)
		if err != nil {
			if r.rejectRootDrift {
				return fmt.Errorf("failed to load recorded root for round %d: %w", rd.Round, err)
			}
			r.logger.Sugar().Warnw("Unable to compare round root with ledger", "round", rd.Round, "error", err)
			continue
		}
		if record == nil {
			continue
		}

		root := rd.Tree.RootHex()
		if record.Root == root {
			continue
		}

		metrics.RootDriftTotal.Inc()
		r.logger.Sugar().Errorw("Round root drifted from published value",
			"round", rd.Round,
			"publishedRoot", record.Root,
			"publishedSnapshot", record.SnapshotID,
			"rebuiltRoot", root,
		)
		if r.rejectRootDrift {
			return fmt.Errorf("%w: round %d published %s, rebuilt %s", ErrRootDrift, rd.Round, record.Root, root)
		}
	}
	return nil
}

// recordRoots stores roots for rounds the ledger has not seen yet. Ledger
// failures are logged; the snapshot is already being served.
func (r *Repository) recordRoots(snap *Snapshot) {
	if r.ledger == nil {
		return
	}

	now := time.Now().Unix()
	for _, rd := range snap.Rounds {
		existing, err := r.ledger.LoadRoundRoot(rd.Round)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to read round root from ledger", "round", rd.Round, "error", err)
			continue
		}
		if existing != nil {
			continue
		}

		record := &persistence.RoundRootRecord{
			Round:            rd.Round,
			Root:             rd.Tree.RootHex(),
			RoundTotal:       rd.RoundTotalAmount.String(),
			AccumulatedTotal: rd.AccumulatedTotalAmount.String(),
			LeafCount:        rd.Tree.LeafCount(),
			SnapshotID:       snap.ID,
			RecordedAt:       now,
		}
		if err := r.ledger.SaveRoundRoot(record); err != nil {
			r.logger.Sugar().Warnw("Failed to record round root", "round", rd.Round, "error", err)
		}
	}

	err := r.ledger.SaveRefreshState(&persistence.RefreshState{
		SnapshotID:  snap.ID,
		RefreshedAt: now,
		LatestRound: snap.LatestRound(),
		RoundCount:  len(snap.Rounds),
	})
	if err != nil {
		r.logger.Sugar().Warnw("Failed to record refresh state", "error", err)
	}
}

func (r *Repository) observe(snap *Snapshot) {
	metrics.SnapshotRefreshTotal.WithLabelValues("success").Inc()
	metrics.SnapshotLastSuccess.Set(float64(snap.CreatedAt.Unix()))
	metrics.SnapshotRounds.Set(float64(len(snap.Rounds)))
	metrics.SnapshotLatestRound.Set(float64(snap.LatestRound()))

	metrics.RoundLeaves.Reset()
	for _, rd := range snap.Rounds {
		metrics.RoundLeaves.WithLabelValues(strconv.Itoa(int(rd.Round))).Set(float64(rd.Tree.LeafCount()))
	}

	if snap.Stats != nil {
		metrics.AggregationAbsorbed.WithLabelValues(metrics.ReasonMalformedAmount).Add(float64(snap.Stats.MalformedAmounts))
		metrics.AggregationAbsorbed.WithLabelValues(metrics.ReasonSkippedAddress).Add(float64(snap.Stats.SkippedAddresses))
		metrics.AggregationAbsorbed.WithLabelValues(metrics.ReasonOverflow).Add(float64(snap.Stats.OverflowedAmounts))
	}
}

func (r *Repository) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Snapshot returns the current snapshot, or nil before the first refresh.
func (r *Repository) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Repository) snapshot() (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepositoryClosed
	}
	if r.current == nil {
		return nil, ErrNoSnapshot
	}
	return r.current, nil
}

// Round returns the tree for round; 0 selects the latest round.
func (r *Repository) Round(round uint8) (*allocation.RoundTreeData, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Resolve(round)
}

// Latest returns the tree for the highest round.
func (r *Repository) Latest() (*allocation.RoundTreeData, error) {
	return r.Round(0)
}

// Rounds summarizes every round of the current snapshot.
func (r *Repository) Rounds() ([]types.RoundSummary, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Summaries(), nil
}

// Calldata returns the claim calldata for address in round.
func (r *Repository) Calldata(round uint8, address string) (*types.CalldataProof, error) {
	rd, err := r.Round(round)
	if err != nil {
		return nil, err
	}
	return rd.Tree.AddressCalldata(address)
}

// AllocationAmount returns the cumulative amount for address in round, zero
// if the address has no allocation.
func (r *Repository) AllocationAmount(round uint8, address string) (types.Amount, error) {
	addr, err := types.ParseAddress(address)
	if err != nil {
		return types.Amount{}, fmt.Errorf("%w: %w", merkle.ErrInvalidAddress, err)
	}
	rd, err := r.Round(round)
	if err != nil {
		return types.Amount{}, err
	}
	return rd.AddressAmount(addr), nil
}

// Root returns the hex root of round.
func (r *Repository) Root(round uint8) (string, error) {
	rd, err := r.Round(round)
	if err != nil {
		return "", err
	}
	return rd.Tree.RootHex(), nil
}

// Close releases the current snapshot. Further queries and refreshes fail.
// The ledger is owned by the caller and is not closed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.current = nil
	return nil
}
