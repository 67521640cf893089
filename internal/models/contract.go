package models

import (
	"time"
)

// Contract represents an indexed smart contract deployment.
// Address is stored and compared in lowercased form and is globally unique.
type Contract struct {
	ID               int64     `json:"id" db:"id"`
	Address          string    `json:"address" db:"address"`
	Network          string    `json:"network" db:"network"`
	ABI              string    `json:"abi" db:"abi"`
	Name             string    `json:"name,omitempty" db:"name"`
	Active           bool      `json:"active" db:"active"`
	LastIndexedBlock *uint64   `json:"last_indexed_block,omitempty,string" db:"last_indexed_block"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// EventSignature describes one tracked event extracted from a contract ABI.
type EventSignature struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Topic0    string `json:"topic0"`
	Indexed   int    `json:"indexed_inputs"`
}
