package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					address TEXT NOT NULL UNIQUE,
					network TEXT NOT NULL,
					abi TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					last_indexed_block INTEGER,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_contracts_network ON contracts(network);
				CREATE INDEX IF NOT EXISTS idx_contracts_active ON contracts(active);
			`,
		},
		{
			Version:     "002",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					block_number INTEGER NOT NULL,
					block_hash TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					tx_index INTEGER NOT NULL,
					log_index INTEGER NOT NULL,
					contract_id INTEGER NOT NULL,
					contract_address TEXT NOT NULL,
					event_name TEXT NOT NULL,
					event_signature TEXT NOT NULL,
					topics TEXT NOT NULL, -- JSON array
					data TEXT NOT NULL,
					raw TEXT NOT NULL, -- full log snapshot, decoded lazily
					network TEXT NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (contract_id) REFERENCES contracts (id)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_events_unique ON events(tx_hash, log_index);
				CREATE INDEX IF NOT EXISTS idx_events_block_number ON events(block_number);
				CREATE INDEX IF NOT EXISTS idx_events_contract_address ON events(contract_address);
				CREATE INDEX IF NOT EXISTS idx_events_event_name ON events(event_name);
				CREATE INDEX IF NOT EXISTS idx_events_network ON events(network);
				CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create indexing_checkpoints table",
			SQL: `
				CREATE TABLE IF NOT EXISTS indexing_checkpoints (
					contract_address TEXT NOT NULL,
					network TEXT NOT NULL,
					last_indexed_block INTEGER NOT NULL DEFAULT 0,
					last_indexed_at DATETIME,
					error_count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (contract_address, network)
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id BIGSERIAL PRIMARY KEY,
					address TEXT NOT NULL UNIQUE,
					network TEXT NOT NULL,
					abi TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					last_indexed_block BIGINT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_contracts_network ON contracts(network);
				CREATE INDEX IF NOT EXISTS idx_contracts_active ON contracts(active);
			`,
		},
		{
			Version:     "002",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id BIGSERIAL PRIMARY KEY,
					block_number NUMERIC(78,0) NOT NULL,
					block_hash TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					tx_index INTEGER NOT NULL,
					log_index INTEGER NOT NULL,
					contract_id BIGINT NOT NULL REFERENCES contracts (id),
					contract_address TEXT NOT NULL,
					event_name TEXT NOT NULL,
					event_signature TEXT NOT NULL,
					topics JSONB NOT NULL,
					data TEXT NOT NULL,
					raw JSONB NOT NULL,
					network TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_events_unique ON events(tx_hash, log_index);
				CREATE INDEX IF NOT EXISTS idx_events_block_number ON events(block_number);
				CREATE INDEX IF NOT EXISTS idx_events_contract_address ON events(contract_address);
				CREATE INDEX IF NOT EXISTS idx_events_event_name ON events(event_name);
				CREATE INDEX IF NOT EXISTS idx_events_network ON events(network);
				CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create indexing_checkpoints table",
			SQL: `
				CREATE TABLE IF NOT EXISTS indexing_checkpoints (
					contract_address TEXT NOT NULL,
					network TEXT NOT NULL,
					last_indexed_block NUMERIC(78,0) NOT NULL DEFAULT 0,
					last_indexed_at TIMESTAMP WITH TIME ZONE,
					error_count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (contract_address, network)
				);
			`,
		},
	}
}
