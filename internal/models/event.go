package models

import (
	"fmt"
	"time"
)

// Event represents one emitted log record captured from the chain.
// Identity is the (TxHash, LogIndex) pair; rows are append-only and
// never mutated after insertion.
type Event struct {
	ID              int64     `json:"id" db:"id"`
	BlockNumber     uint64    `json:"block_number,string" db:"block_number"`
	BlockHash       string    `json:"block_hash" db:"block_hash"`
	TxHash          string    `json:"tx_hash" db:"tx_hash"`
	TxIndex         uint      `json:"tx_index,string" db:"tx_index"`
	LogIndex        uint      `json:"log_index,string" db:"log_index"`
	ContractAddress string    `json:"contract_address" db:"contract_address"`
	EventName       string    `json:"event_name" db:"event_name"`
	EventSig        string    `json:"event_signature" db:"event_signature"`
	Topics          []string  `json:"topics" db:"topics"`
	Data            string    `json:"data" db:"data"`
	Raw             string    `json:"raw,omitempty" db:"raw"`
	Network         string    `json:"network" db:"network"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Key returns the deduplication key for the event.
func (e *Event) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// EventFilter holds the AND-combined query filters for stored events.
// Nil fields are unconstrained.
type EventFilter struct {
	ContractAddress *string    `json:"contract_address,omitempty"`
	EventName       *string    `json:"event_name,omitempty"`
	Network         *string    `json:"network,omitempty"`
	FromBlock       *uint64    `json:"from_block,omitempty"`
	ToBlock         *uint64    `json:"to_block,omitempty"`
	FromDate        *time.Time `json:"from_date,omitempty"`
	ToDate          *time.Time `json:"to_date,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	Offset          int        `json:"offset,omitempty"`
}
