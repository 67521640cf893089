package storage

import (
	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// NewStore creates a storage backend based on configuration
func NewStore(config *StoreConfig, metricsManager *metrics.Manager) (Store, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStore(config, metricsManager), nil
	case "postgres":
		return NewPostgresStore(config, metricsManager), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type: "+config.Type, "supported types: sqlite, postgres")
	}
}
