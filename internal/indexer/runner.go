package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/contract"
	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/internal/network"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// Run states, exported through the run state gauge.
const (
	StateIdle = iota
	StateFetching
	StateAggregating
	StatePersisting
)

// BlockBound is one endpoint of a requested range: a decimal height, or one
// of the sentinels "earliest" (height 0) and "latest" (live chain head,
// resolved at run time).
type BlockBound struct {
	Height   uint64
	Earliest bool
	Latest   bool
}

// NewBlockBound wraps a concrete height.
func NewBlockBound(height uint64) BlockBound {
	return BlockBound{Height: height}
}

func (b *BlockBound) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "earliest":
		*b = BlockBound{Earliest: true}
		return nil
	case "latest":
		*b = BlockBound{Latest: true}
		return nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("block bound must be a decimal height, \"earliest\" or \"latest\", got %q", s)
	}
	*b = BlockBound{Height: n}
	return nil
}

func (b BlockBound) MarshalJSON() ([]byte, error) {
	switch {
	case b.Earliest:
		return []byte(`"earliest"`), nil
	case b.Latest:
		return []byte(`"latest"`), nil
	default:
		return []byte(`"` + strconv.FormatUint(b.Height, 10) + `"`), nil
	}
}

// RunRequest describes one on-demand ingestion run.
type RunRequest struct {
	ContractAddress string     `json:"contractAddress"`
	ABI             string     `json:"abi"`
	Events          []string   `json:"events"`
	FromBlock       BlockBound `json:"fromBlock"`
	ToBlock         BlockBound `json:"toBlock"`
	Network         string     `json:"network"`
	Name            string     `json:"name,omitempty"`
}

// resolveBlockBounds turns the request bounds into concrete heights. The
// head supplier is consulted once, and only when a bound asks for it.
func resolveBlockBounds(from, to BlockBound, head func() (uint64, error)) (uint64, uint64, error) {
	fromBlock, toBlock := from.Height, to.Height
	if from.Earliest {
		fromBlock = 0
	}
	if to.Earliest {
		toBlock = 0
	}

	if from.Latest || to.Latest {
		h, err := head()
		if err != nil {
			return 0, 0, err
		}
		if from.Latest {
			fromBlock = h
		}
		if to.Latest {
			toBlock = h
		}
	}

	return fromBlock, toBlock, nil
}

// RunResult summarizes a completed ingestion run.
type RunResult struct {
	Events        []*models.Event
	ContractAddr  string
	Network       string
	EventsTracked []string
	FromBlock     uint64
	ToBlock       uint64
	TotalEvents   int
	Inserted      int
	TotalChunks   int
	FailedChunks  int
}

// Runner drives the ingestion pipeline: signature extraction, range
// chunking, sequential fetching, canonical ordering, idempotent persistence
// and checkpointing.
type Runner struct {
	registry       *network.Registry
	store          storage.Store
	cfg            *config.IndexerConfig
	logger         *logrus.Logger
	metricsManager *metrics.Manager
}

// NewRunner creates a runner wired to a network registry and a store.
func NewRunner(registry *network.Registry, store storage.Store, cfg *config.IndexerConfig, metricsManager *metrics.Manager) *Runner {
	return &Runner{
		registry:       registry,
		store:          store,
		cfg:            cfg,
		logger:         utils.GetLogger(),
		metricsManager: metricsManager,
	}
}

// Run executes one ingestion run end to end. Individual chunk failures are
// tolerated and surfaced in the result; the run fails only when validation
// fails, every chunk fails, or persistence fails.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()

	address, err := contract.NormalizeAddress(req.ContractAddress)
	if err != nil {
		return nil, err
	}

	params, err := r.registry.Resolve(req.Network)
	if err != nil {
		return nil, err
	}
	netName := params.Name

	signatures, err := contract.ExtractEventSignatures(req.ABI, req.Events)
	if err != nil {
		return nil, err
	}

	fromBlock, toBlock, err := resolveBlockBounds(req.FromBlock, req.ToBlock, func() (uint64, error) {
		return r.registry.ChainHead(ctx, netName)
	})
	if err != nil {
		return nil, err
	}

	chunks, err := SplitRange(fromBlock, toBlock, r.cfg.MaxBlockWindow, r.cfg.MaxBlockSpan)
	if err != nil {
		return nil, err
	}

	stored, err := r.store.UpsertContract(ctx, &models.Contract{
		Address: address,
		Network: netName,
		ABI:     req.ABI,
		Name:    req.Name,
		Active:  true,
	})
	if err != nil {
		return nil, err
	}

	client, err := r.registry.Client(ctx, netName)
	if err != nil {
		r.recordRun(netName, "error", start)
		return nil, err
	}

	r.setState(netName, StateFetching)
	defer r.setState(netName, StateIdle)

	r.logger.WithFields(logrus.Fields{
		"contract":   address,
		"network":    netName,
		"from_block": fromBlock,
		"to_block":   toBlock,
		"chunks":     len(chunks),
		"events":     req.Events,
	}).Info("Starting indexing run")

	fetcher := NewFetcher(client, netName, r.cfg.ChunkDelay, r.metricsManager)
	fetched, err := fetcher.FetchAll(ctx, common.HexToAddress(address), signatures, chunks)
	if err != nil {
		r.recordRun(netName, "error", start)
		return nil, err
	}

	if fetched.TotalChunks > 0 && fetched.FailedChunks == fetched.TotalChunks {
		runErr := utils.NewAppError(utils.ErrCodeFetch,
			"All chunk queries failed",
			fmt.Sprintf("%d of %d chunks failed", fetched.FailedChunks, fetched.TotalChunks))
		if cpErr := r.store.RecordCheckpointError(ctx, address, netName, runErr.Error()); cpErr != nil {
			r.logger.WithField("error", cpErr).Warn("Failed to record checkpoint error")
		}
		r.recordRun(netName, "error", start)
		return nil, runErr
	}

	r.setState(netName, StateAggregating)
	SortCanonical(fetched.Events)

	r.setState(netName, StatePersisting)
	inserted, err := r.store.InsertEvents(ctx, fetched.Events, stored.ID, netName)
	if err != nil {
		r.recordRun(netName, "error", start)
		return nil, err
	}

	// Checkpoint to the maximum height the run actually covered. A clean run
	// covered the full range; a partially failed run only proved coverage up
	// to its highest observed event.
	checkpoint, observed := MaxBlock(fetched.Events)
	if fetched.FailedChunks == 0 {
		checkpoint = toBlock
		observed = true
	}
	if observed {
		if err := r.store.UpdateCheckpoint(ctx, address, netName, checkpoint); err != nil {
			r.recordRun(netName, "error", start)
			return nil, err
		}
	}

	r.recordRun(netName, "success", start)
	r.logger.WithFields(logrus.Fields{
		"contract":      address,
		"network":       netName,
		"fetched":       len(fetched.Events),
		"inserted":      inserted,
		"failed_chunks": fetched.FailedChunks,
		"total_chunks":  fetched.TotalChunks,
		"duration":      time.Since(start).String(),
	}).Info("Indexing run completed")

	return &RunResult{
		Events:        fetched.Events,
		ContractAddr:  address,
		Network:       netName,
		EventsTracked: req.Events,
		FromBlock:     fromBlock,
		ToBlock:       toBlock,
		TotalEvents:   len(fetched.Events),
		Inserted:      inserted,
		TotalChunks:   fetched.TotalChunks,
		FailedChunks:  fetched.FailedChunks,
	}, nil
}

func (r *Runner) setState(network string, state int) {
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().UpdateRunState(network, state)
	}
}

func (r *Runner) recordRun(network, status string, start time.Time) {
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordIndexingRun(network, status, time.Since(start))
	}
}
