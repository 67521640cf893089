package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(config *StoreConfig, metricsManager *metrics.Manager) *SQLiteStore {
	return &SQLiteStore{
		config:         config,
		logger:         utils.GetLogger(),
		migrations:     GetSQLiteMigrations(),
		metricsManager: metricsManager,
	}
}

// Connect establishes the database connection
func (s *SQLiteStore) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL mode tolerates concurrent overlapping runs
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate() error {
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

// InsertEvents performs a set-style insert of candidate records. Records
// whose (tx_hash, log_index) key already exists are silently skipped, so
// overlapping re-runs are idempotent. Returns the number of rows actually
// inserted.
func (s *SQLiteStore) InsertEvents(ctx context.Context, events []*models.Event, contractID int64, network string) (int, error) {
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
		INSERT OR IGNORE INTO events
		(block_number, block_hash, tx_hash, tx_index, log_index, contract_id,
		 contract_address, event_name, event_signature, topics, data, raw,
		 network, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
	s.logger.WithFields(logrus.Fields{
		"candidates": len(events),
		"inserted":   inserted,
	}).Debug("Inserted event batch")

	return inserted, nil
}

// UpsertContract creates or refreshes a contract row, keyed by lowercased
// address, and returns the stored row including its id.
func (s *SQLiteStore) UpsertContract(ctx context.Context, contract *models.Contract) (*models.Contract, error) {
	start := time.Now()
	address := strings.ToLower(contract.Address)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (address, network, abi, name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			network = excluded.network,
			abi = excluded.abi,
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contracts.name END,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, address, contract.Network, contract.ABI, contract.Name, contract.Active, now, now)
	if err != nil {
		s.recordDBOp("upsert", "contracts", "error", start)
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert contract", err.Error())
	}

	s.recordDBOp("upsert", "contracts", "success", start)
	return s.GetContract(ctx, address, contract.Network)
}

// UpdateCheckpoint records a completed run: sets the checkpoint to the
// maximum observed height and resets the error counter.
func (s *SQLiteStore) UpdateCheckpoint(ctx context.Context, contractAddress, network string, blockHeight uint64) error {
	start := time.Now()
	address := strings.ToLower(contractAddress)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexing_checkpoints
			(contract_address, network, last_indexed_block, last_indexed_at, error_count, last_error)
		VALUES (?, ?, ?, ?, 0, '')
		ON CONFLICT(contract_address, network) DO UPDATE SET
			last_indexed_block = MAX(indexing_checkpoints.last_indexed_block, excluded.last_indexed_block),
			last_indexed_at = excluded.last_indexed_at,
			error_count = 0,
			last_error = ''
	`, address, network, blockHeight, now)
	if err != nil {
		s.recordDBOp("upsert", "indexing_checkpoints", "error", start)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update checkpoint", err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE contracts
		SET last_indexed_block = MAX(COALESCE(last_indexed_block, 0), ?), updated_at = ?
		WHERE address = ?
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

// RecordCheckpointError increments the consecutive error counter for a
// (contract, network) pair and remembers the failure message.
func (s *SQLiteStore) RecordCheckpointError(ctx context.Context, contractAddress, network, message string) error {
	address := strings.ToLower(contractAddress)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexing_checkpoints
			(contract_address, network, last_indexed_block, error_count, last_error)
		VALUES (?, ?, 0, 1, ?)
		ON CONFLICT(contract_address, network) DO UPDATE SET
			error_count = indexing_checkpoints.error_count + 1,
			last_error = excluded.last_error
	`, address, network, message)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record checkpoint error", err.Error())
	}

	return nil
}

// GetContract retrieves a contract by lowercased address and network
func (s *SQLiteStore) GetContract(ctx context.Context, address, network string) (*models.Contract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, network, abi, name, active, last_indexed_block, created_at, updated_at
		FROM contracts WHERE address = ? AND network = ?
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
func (s *SQLiteStore) GetContracts(ctx context.Context, network *string) ([]*models.Contract, error) {
	query := `
		SELECT id, address, network, abi, name, active, last_indexed_block, created_at, updated_at
		FROM contracts
	`
	args := []interface{}{}

	if network != nil {
		query += " WHERE network = ?"
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
func (s *SQLiteStore) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	builder := NewFilterBuilder().FromEventFilter(filter)
	clause, args := builder.Clause(DialectSQLite)

	query := `
		SELECT id, block_number, block_hash, tx_hash, tx_index, log_index,
		       contract_address, event_name, event_signature, topics, data, raw,
		       network, created_at, updated_at
		FROM events
	` + clause + " ORDER BY block_number DESC, log_index ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
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
func (s *SQLiteStore) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	builder := NewFilterBuilder().FromEventFilter(filter)
	clause, args := builder.Clause(DialectSQLite)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+clause, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}

	return count, nil
}

// GetMaxBlock returns the highest stored block height for the selector, or
// nil when no matching events exist.
func (s *SQLiteStore) GetMaxBlock(ctx context.Context, contractAddress, network string, eventName *string) (*uint64, error) {
	query := "SELECT MAX(block_number) FROM events WHERE contract_address = ? AND network = ?"
	args := []interface{}{strings.ToLower(contractAddress), network}

	if eventName != nil {
		query += " AND event_name = ?"
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
func (s *SQLiteStore) GetCheckpoints(ctx context.Context) ([]*models.IndexingCheckpoint, error) {
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
func (s *SQLiteStore) GetEventNames(ctx context.Context, contractAddress, network string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT event_name FROM events
		WHERE contract_address = ? AND network = ?
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
func (s *SQLiteStore) GetStats(ctx context.Context) (*StoreStats, error) {
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

	// MIN/MAX strip the column's declared type, so the driver hands the
	// timestamps back as text.
	var oldest, newest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM events").Scan(&oldest, &newest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event times", err.Error())
	}
	if oldest.Valid {
		stats.OldestEvent = parseSQLiteTime(oldest.String)
	}
	if newest.Valid {
		stats.LatestEvent = parseSQLiteTime(newest.String)
	}

	return stats, nil
}

func parseSQLiteTime(value string) *time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func (s *SQLiteStore) recordDBOp(operation, table, status string, start time.Time) {
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
	}
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row scanner) (*models.Contract, error) {
	var contract models.Contract
	var lastIndexed sql.NullInt64

	err := row.Scan(&contract.ID, &contract.Address, &contract.Network, &contract.ABI,
		&contract.Name, &contract.Active, &lastIndexed, &contract.CreatedAt, &contract.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastIndexed.Valid {
		height := uint64(lastIndexed.Int64)
		contract.LastIndexedBlock = &height
	}

	return &contract, nil
}

func scanEvent(row scanner) (*models.Event, error) {
	var event models.Event
	var topicsJSON string

	err := row.Scan(&event.ID, &event.BlockNumber, &event.BlockHash, &event.TxHash,
		&event.TxIndex, &event.LogIndex, &event.ContractAddress, &event.EventName,
		&event.EventSig, &topicsJSON, &event.Data, &event.Raw, &event.Network,
		&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(topicsJSON), &event.Topics); err != nil {
		return nil, err
	}

	return &event, nil
}
