package indexer

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// LogClient captures the subset of ethclient used by the fetcher.
type LogClient interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// FetchResult holds the accumulated candidate records of one fetch pass.
// Completeness is best-effort: FailedChunks reports how many chunk queries
// were skipped after an upstream failure.
type FetchResult struct {
	Events       []*models.Event
	TotalChunks  int
	FailedChunks int
}

// Fetcher issues one bounded log query per chunk per tracked event
// signature. Chunks are walked strictly sequentially with a fixed delay
// between requests as cooperative rate-limiting; a failing chunk is recorded
// and skipped, never aborting the run.
type Fetcher struct {
	client         LogClient
	network        string
	chunkDelay     time.Duration
	logger         *logrus.Logger
	metricsManager *metrics.Manager
}

// NewFetcher creates a fetcher bound to one network client.
func NewFetcher(client LogClient, network string, chunkDelay time.Duration, metricsManager *metrics.Manager) *Fetcher {
	return &Fetcher{
		client:         client,
		network:        network,
		chunkDelay:     chunkDelay,
		logger:         utils.GetLogger(),
		metricsManager: metricsManager,
	}
}

// FetchAll walks every chunk for every signature and returns the union of
// all chunk results that succeeded. The context is honored between chunks,
// so a caller can abort without corrupting already-collected state.
func (f *Fetcher) FetchAll(ctx context.Context, address common.Address, signatures []models.EventSignature, chunks []BlockRange) (*FetchResult, error) {
	result := &FetchResult{
		TotalChunks: len(chunks) * len(signatures),
	}

	for si, sig := range signatures {
		for ci, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			logs, err := f.fetchChunk(ctx, address, sig, chunk)
			if err != nil {
				result.FailedChunks++
				f.logger.WithFields(logrus.Fields{
					"network":    f.network,
					"event":      sig.Name,
					"from_block": chunk.From,
					"to_block":   chunk.To,
					"error":      err,
				}).Warn("Chunk fetch failed, continuing with next chunk")
			} else {
				for _, lg := range logs {
					event, convErr := f.logToEvent(lg, sig)
					if convErr != nil {
						f.logger.WithField("error", convErr).Warn("Skipping unconvertible log record")
						continue
					}
					result.Events = append(result.Events, event)
				}
			}

			// Cooperative rate-limiting between upstream requests, across
			// signature boundaries too.
			lastRequest := si == len(signatures)-1 && ci == len(chunks)-1
			if f.chunkDelay > 0 && !lastRequest {
				select {
				case <-ctx.Done():
					return result, ctx.Err()
				case <-time.After(f.chunkDelay):
				}
			}
		}
	}

	return result, nil
}

// fetchChunk issues one bounded log query for a single chunk and signature.
func (f *Fetcher) fetchChunk(ctx context.Context, address common.Address, sig models.EventSignature, chunk BlockRange) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(chunk.From),
		ToBlock:   new(big.Int).SetUint64(chunk.To),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{common.HexToHash(sig.Topic0)}},
	}

	start := time.Now()
	logs, err := f.client.FilterLogs(ctx, query)
	if f.metricsManager != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		f.metricsManager.GetPrometheusMetrics().RecordChunkFetch(f.network, status, time.Since(start))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeFetch, "Log query failed", err.Error())
	}

	return logs, nil
}

// logToEvent converts a raw chain log into an event record tagged with its
// originating event name. The raw log is kept as an opaque snapshot and
// decoded lazily by the query layer when requested.
func (f *Fetcher) logToEvent(lg types.Log, sig models.EventSignature) (*models.Event, error) {
	raw, err := json.Marshal(lg)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(lg.Topics))
	for _, t := range lg.Topics {
		topics = append(topics, t.Hex())
	}

	return &models.Event{
		BlockNumber:     lg.BlockNumber,
		BlockHash:       lg.BlockHash.Hex(),
		TxHash:          lg.TxHash.Hex(),
		TxIndex:         lg.TxIndex,
		LogIndex:        lg.Index,
		ContractAddress: strings.ToLower(lg.Address.Hex()),
		EventName:       sig.Name,
		EventSig:        sig.Topic0,
		Topics:          topics,
		Data:            "0x" + common.Bytes2Hex(lg.Data),
		Raw:             string(raw),
		Network:         f.network,
	}, nil
}
