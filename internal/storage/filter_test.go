package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
)

func TestFilterBuilderEmpty(t *testing.T) {
	b := NewFilterBuilder().FromEventFilter(models.EventFilter{})
	assert.True(t, b.Empty())

	clause, args := b.Clause(DialectSQLite)
	assert.Equal(t, "", clause)
	assert.Nil(t, args)
}

func TestFilterBuilderSQLite(t *testing.T) {
	addr := "0xABCDEF1234567890abcdef1234567890ABCDEF12"
	name := "Transfer"
	from := uint64(100)

	b := NewFilterBuilder().FromEventFilter(models.EventFilter{
		ContractAddress: &addr,
		EventName:       &name,
		FromBlock:       &from,
	})

	clause, args := b.Clause(DialectSQLite)
	assert.Equal(t, " WHERE contract_address = ? AND event_name = ? AND block_number >= ?", clause)
	assert.Equal(t, []interface{}{"0xabcdef1234567890abcdef1234567890abcdef12", "Transfer", uint64(100)}, args)
}

func TestFilterBuilderPostgres(t *testing.T) {
	network := "mainnet"
	to := uint64(500)
	toDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	b := NewFilterBuilder().FromEventFilter(models.EventFilter{
		Network: &network,
		ToBlock: &to,
		ToDate:  &toDate,
	})

	clause, args := b.Clause(DialectPostgres)
	assert.Equal(t, " WHERE network = $1 AND block_number <= $2 AND created_at <= $3", clause)
	assert.Len(t, args, 3)

	assert.Equal(t, "$4", b.NextPlaceholder(DialectPostgres, 0))
	assert.Equal(t, "$5", b.NextPlaceholder(DialectPostgres, 1))
	assert.Equal(t, "?", b.NextPlaceholder(DialectSQLite, 0))
}
