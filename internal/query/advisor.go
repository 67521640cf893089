package query

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/contract"
	"github.com/smartdevs17/evm-event-indexer/internal/network"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// RangeSuggestion is the advisor's recommended next ingestion range.
type RangeSuggestion struct {
	FromBlock          uint64  `json:"fromBlock,string"`
	ToBlock            uint64  `json:"toBlock,string"`
	LatestIndexedBlock *uint64 `json:"latestIndexedBlock,string,omitempty"`
	IsOptimalRange     bool    `json:"isOptimalRange"`
	Message            string  `json:"message"`
}

// HeadSource resolves network identifiers and reports the live chain head.
// Satisfied by network.Registry.
type HeadSource interface {
	Resolve(network string) (network.Params, error)
	ChainHead(ctx context.Context, network string) (uint64, error)
}

// Advisor suggests the next block range to ingest for a contract, so
// repeated runs continue from where indexed history ends instead of
// re-scanning old blocks.
type Advisor struct {
	store  storage.Store
	heads  HeadSource
	cfg    *config.IndexerConfig
	logger *logrus.Logger
}

// NewAdvisor creates a range advisor.
func NewAdvisor(store storage.Store, heads HeadSource, cfg *config.IndexerConfig) *Advisor {
	return &Advisor{
		store:  store,
		heads:  heads,
		cfg:    cfg,
		logger: utils.GetLogger(),
	}
}

// Suggest computes the recommended range for a contract. The range is
// always a fixed-size look-back window: with indexed history it ends at the
// highest stored block and the suggestion is optimal. Without history it
// ends at the live chain head, and if even the head cannot be resolved, at
// a conservative static height.
func (a *Advisor) Suggest(ctx context.Context, contractAddress, netName string, eventName *string) (*RangeSuggestion, error) {
	address, err := contract.NormalizeAddress(contractAddress)
	if err != nil {
		return nil, err
	}
	params, err := a.heads.Resolve(netName)
	if err != nil {
		return nil, err
	}

	window := a.cfg.SmartWindow
	if window == 0 {
		window = 1000
	}

	latest, err := a.store.GetMaxBlock(ctx, address, params.Name, eventName)
	if err != nil {
		return nil, err
	}

	if latest != nil {
		return &RangeSuggestion{
			FromBlock:          lookBackFrom(*latest, window),
			ToBlock:            *latest,
			LatestIndexedBlock: latest,
			IsOptimalRange:     true,
			Message:            "Range ends at the latest indexed block",
		}, nil
	}

	head, err := a.heads.ChainHead(ctx, params.Name)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"network": params.Name,
			"error":   err,
		}).Warn("Chain head unavailable, using fallback height")

		head = a.cfg.FallbackHead
		return &RangeSuggestion{
			FromBlock:      lookBackFrom(head, window),
			ToBlock:        head,
			IsOptimalRange: false,
			Message:        "No indexed history and chain head unavailable, using a conservative fallback range",
		}, nil
	}

	return &RangeSuggestion{
		FromBlock:      lookBackFrom(head, window),
		ToBlock:        head,
		IsOptimalRange: false,
		Message:        "No indexed history for this contract, starting from a recent look-back window",
	}, nil
}

func lookBackFrom(head, window uint64) uint64 {
	if head+1 <= window {
		return 0
	}
	return head - window + 1
}
