package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
)

// Store defines the persistence interface for the indexer.
//
// Event rows are append-only: an insert whose (tx_hash, log_index) key
// already exists is silently skipped, so re-running an overlapping range is
// always safe, including under concurrent runs for the same contract.
type Store interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Write side (ingestion pipeline)
	InsertEvents(ctx context.Context, events []*models.Event, contractID int64, network string) (int, error)
	UpsertContract(ctx context.Context, contract *models.Contract) (*models.Contract, error)
	UpdateCheckpoint(ctx context.Context, contractAddress, network string, blockHeight uint64) error
	RecordCheckpointError(ctx context.Context, contractAddress, network, message string) error

	// Read side (query service, range advisor)
	GetContract(ctx context.Context, address, network string) (*models.Contract, error)
	GetContracts(ctx context.Context, network *string) ([]*models.Contract, error)
	GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error)
	GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error)
	GetMaxBlock(ctx context.Context, contractAddress, network string, eventName *string) (*uint64, error)
	GetCheckpoints(ctx context.Context) ([]*models.IndexingCheckpoint, error)
	GetEventNames(ctx context.Context, contractAddress, network string) ([]string, error)

	// Statistics
	GetStats(ctx context.Context) (*StoreStats, error)
}

// StoreStats provides storage statistics
type StoreStats struct {
	TotalEvents      int64      `json:"total_events"`
	TotalContracts   int64      `json:"total_contracts"`
	TotalCheckpoints int64      `json:"total_checkpoints"`
	LatestBlock      uint64     `json:"latest_block,string"`
	OldestEvent      *time.Time `json:"oldest_event,omitempty"`
	LatestEvent      *time.Time `json:"latest_event,omitempty"`
}

// StoreConfig holds storage configuration
type StoreConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
