package models

import (
	"time"
)

// IndexingCheckpoint records indexing progress for one (contract, network)
// pair. It is written only after a run completes.
type IndexingCheckpoint struct {
	ContractAddress  string     `json:"contract_address" db:"contract_address"`
	Network          string     `json:"network" db:"network"`
	LastIndexedBlock uint64     `json:"last_indexed_block,string" db:"last_indexed_block"`
	LastIndexedAt    *time.Time `json:"last_indexed_at,omitempty" db:"last_indexed_at"`
	ErrorCount       int        `json:"error_count" db:"error_count"`
	LastError        string     `json:"last_error,omitempty" db:"last_error"`
}
