package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewPostgresStore creates a new PostgreSQL store instance
func NewPostgresStore(config *StoreConfig, metricsManager *metrics.Manager) *PostgresStore {
	return &PostgresStore{
		config:         config,
		logger:         utils.GetLogger(),
		migrations:     GetPostgresMigrations(),
		metricsManager: metricsManager,
	}
}

// Connect establishes the database connection
func (s *PostgresStore) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				"Migration "+migration.Version+" failed", err.Error())
		}
	}

	return nil
}

// InsertEvents inserts candidate records, skipping rows whose
// (tx_hash, log_index) key already exists. Returns the number of rows
// actually inserted.
func (s *PostgresStore) InsertEvents(ctx context.Context, events []*models.Event, contractID int64, network string) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(block_number, block_hash, tx_hash, tx_index, log_index, contract_id,
		 contract_address, event_name, event_signature, topics, data, raw,
		 network, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0

	for _, event := range events {
		topicsJSON, err := json.Marshal(event.Topics)
		if err != nil {
			return inserted, utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal topics", err.Error())
		}

		res, err := stmt.ExecContext(ctx,
			event.BlockNumber, event.BlockHash, event.TxHash, event.TxIndex,
			event.LogIndex, contractID, strings.ToLower(event.ContractAddress),
			event.EventName, event.EventSig, string(topicsJSON), event.Data,
			event.Raw, network, now, now)
		if err != nil {
			s.recordDBOp("insert", "events", "error", start)
			return inserted, utils.NewAppError(utils.ErrCodeDatabase, "Failed to insert event", err.Error())
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return inserted, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
		}
		if rows > 0 {
			inserted++
			if s.metricsManager != nil {
				s.metricsManager.GetPrometheusMetrics().RecordEventIndexed(
					strings.ToLower(event.ContractAddress), event.EventName, network)
			}
		} else if s.metricsManager != nil {
			s.metricsManager.GetPrometheusMetrics().RecordDuplicateSkipped()
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}

	s.recordDBOp("insert", "events", "success", start)
	return inserted, nil
}

// UpsertContract creates or refreshes a contract row keyed by lowercased address
func (s *PostgresStore) UpsertContract(ctx context.Context, contract *models.Contract) (*models.Contract, error) {
	start := time.Now()
	address := strings.ToLower(contract.Address)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (address, network, abi, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			network = EXCLUDED.network,
			abi = EXCLUDED.abi,
			name = CASE WHEN EXCLUDED.name != '' THEN EXCLUDED.name ELSE contracts.name END,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`, address, contract.Network, contract.ABI, contract.Name, contract.Active, now, now)
	if err != nil {
		s.recordDBOp("upsert", "contracts", "error", start)
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert contract", err.Error())
	}

	s.recordDBOp("upsert", "contracts", "success", start)
	return s.GetContract(ctx, address, contract.Network)
}

// UpdateCheckpoint records a completed run for a (contract, network) pair
func (s *PostgresStore) UpdateCheckpoint(ctx context.Context, contractAddress, network string, blockHeight uint64) error {
	start := time.Now()
	address := strings.ToLower(contractAddress)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexing_checkpoints
			(contract_address, network, last_indexed_block, last_indexed_at, error_count, last_error)
		VALUES ($1, $2, $3, $4, 0, '')
		ON CONFLICT (contract_address, network) DO UPDATE SET
			last_indexed_block = GREATEST(indexing_checkpoints.last_indexed_block, EXCLUDED.last_indexed_block),
			last_indexed_at = EXCLUDED.last_indexed_at,
			error_count = 0,
			last_error = ''
	`, address, network, blockHeight, now)
	if err != nil {
		s.recordDBOp("upsert", "indexing_checkpoints", "error", start)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update checkpoint", err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE contracts
		SET last_indexed_block = GREATEST(COALESCE(last_indexed_block, 0), $1), updated_at = $2
		WHERE address = $3
	`, blockHeight, now, address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update contract checkpoint", err.Error())
	}

	s.recordDBOp("upsert", "indexing_checkpoints", "success", start)
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateLastIndexedBlock(address, network, blockHeight)
	}

	return nil
}

// RecordCheckpointError increments the consecutive error counter for a pair
func (s *PostgresStore) RecordCheckpointError(ctx context.Context, contractAddress, network, message string) error {
	address := strings.ToLower(contractAddress)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexing_checkpoints
			(contract_address, network, last_indexed_block, error_count, last_error)
		VALUES ($1, $2, 0, 1, $3)
		ON CONFLICT (contract_address, network) DO UPDATE SET
			error_count = indexing_checkpoints.error_count + 1,
			last_error = EXCLUDED.last_error
	`, address, network, message)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record checkpoint error", err.Error())
	}

	return nil
}

// GetContract retrieves a contract by lowercased address and network
func (s *PostgresStore) GetContract(ctx context.Context, address, network string) (*models.Contract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, network, abi, name, active, last_indexed_block, created_at, updated_at
		FROM contracts WHERE address = $1 AND network = $2
	`, strings.ToLower(address), network)

	contract, err := scanContract(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get contract", err.Error())
	}

	return contract, nil
}

// GetContracts lists contracts, optionally filtered by network
func (s *PostgresStore) GetContracts(ctx context.Context, network *string) ([]*models.Contract, error) {
	query := `
		SELECT id, address, network, abi, name, active, last_indexed_block, created_at, updated_at
		FROM contracts
	`
	args := []interface{}{}

	if network != nil {
		query += " WHERE network = $1"
		args = append(args, *network)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query contracts", err.Error())
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan contract", err.Error())
		}
		contracts = append(contracts, contract)
	}

	return contracts, rows.Err()
}

// GetEvents retrieves stored events matching the filter, most recent first
func (s *PostgresStore) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	builder := NewFilterBuilder().FromEventFilter(filter)
	clause, args := builder.Clause(DialectPostgres)

	query := `
		SELECT id, block_number, block_hash, tx_hash, tx_index, log_index,
		       contract_address, event_name, event_signature, topics, data, raw,
		       network, created_at, updated_at
		FROM events
	` + clause + " ORDER BY block_number DESC, log_index ASC"

	extra := 0
	if filter.Limit > 0 {
		query += " LIMIT " + builder.NextPlaceholder(DialectPostgres, extra)
		args = append(args, filter.Limit)
		extra++
	}
	if filter.Offset > 0 {
		query += " OFFSET " + builder.NextPlaceholder(DialectPostgres, extra)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// GetEventCount counts stored events matching the filter
func (s *PostgresStore) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	builder := NewFilterBuilder().FromEventFilter(filter)
	clause, args := builder.Clause(DialectPostgres)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+clause, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}

	return count, nil
}

// GetMaxBlock returns the highest stored block height for the selector
func (s *PostgresStore) GetMaxBlock(ctx context.Context, contractAddress, network string, eventName *string) (*uint64, error) {
	query := "SELECT MAX(block_number) FROM events WHERE contract_address = $1 AND network = $2"
	args := []interface{}{strings.ToLower(contractAddress), network}

	if eventName != nil {
		query += " AND event_name = $3"
		args = append(args, *eventName)
	}

	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&max)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get max block", err.Error())
	}
	if !max.Valid {
		return nil, nil
	}

	height := uint64(max.Int64)
	return &height, nil
}

// GetCheckpoints lists all indexing checkpoints
func (s *PostgresStore) GetCheckpoints(ctx context.Context) ([]*models.IndexingCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contract_address, network, last_indexed_block, last_indexed_at, error_count, last_error
		FROM indexing_checkpoints
		ORDER BY contract_address ASC, network ASC
	`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query checkpoints", err.Error())
	}
	defer rows.Close()

	var checkpoints []*models.IndexingCheckpoint
	for rows.Next() {
		var cp models.IndexingCheckpoint
		var lastIndexedAt sql.NullTime

		err := rows.Scan(&cp.ContractAddress, &cp.Network, &cp.LastIndexedBlock,
			&lastIndexedAt, &cp.ErrorCount, &cp.LastError)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan checkpoint", err.Error())
		}
		if lastIndexedAt.Valid {
			cp.LastIndexedAt = &lastIndexedAt.Time
		}
		checkpoints = append(checkpoints, &cp)
	}

	return checkpoints, rows.Err()
}

// GetEventNames lists the distinct event names stored for a contract
func (s *PostgresStore) GetEventNames(ctx context.Context, contractAddress, network string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT event_name FROM events
		WHERE contract_address = $1 AND network = $2
		ORDER BY event_name ASC
	`, strings.ToLower(contractAddress), network)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query event names", err.Error())
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event name", err.Error())
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// GetStats returns storage statistics
func (s *PostgresStore) GetStats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&stats.TotalEvents); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts").Scan(&stats.TotalContracts); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count contracts", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indexing_checkpoints").Scan(&stats.TotalCheckpoints); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count checkpoints", err.Error())
	}

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(block_number) FROM events").Scan(&latest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest block", err.Error())
	}
	if latest.Valid {
		stats.LatestBlock = uint64(latest.Int64)
	}

	var oldest, newest sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM events").Scan(&oldest, &newest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event times", err.Error())
	}
	if oldest.Valid {
		stats.OldestEvent = &oldest.Time
	}
	if newest.Valid {
		stats.LatestEvent = &newest.Time
	}

	return stats, nil
}

func (s *PostgresStore) recordDBOp(operation, table, status string, start time.Time) {
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
	}
}
