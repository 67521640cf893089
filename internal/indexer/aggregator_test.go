package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
)

func TestSortCanonical(t *testing.T) {
	events := []*models.Event{
		{BlockNumber: 300, LogIndex: 2, TxHash: "0xc"},
		{BlockNumber: 100, LogIndex: 7, TxHash: "0xa"},
		{BlockNumber: 300, LogIndex: 0, TxHash: "0xd"},
		{BlockNumber: 100, LogIndex: 1, TxHash: "0xb"},
	}

	SortCanonical(events)

	assert.Equal(t, "0xb", events[0].TxHash)
	assert.Equal(t, "0xa", events[1].TxHash)
	assert.Equal(t, "0xd", events[2].TxHash)
	assert.Equal(t, "0xc", events[3].TxHash)
}

func TestSortCanonicalStableAcrossSignatures(t *testing.T) {
	// Records from different signatures interleave purely by chain position.
	events := []*models.Event{
		{BlockNumber: 50, LogIndex: 3, EventName: "Approval"},
		{BlockNumber: 50, LogIndex: 1, EventName: "Transfer"},
		{BlockNumber: 49, LogIndex: 9, EventName: "Approval"},
	}

	SortCanonical(events)

	assert.Equal(t, uint64(49), events[0].BlockNumber)
	assert.Equal(t, "Transfer", events[1].EventName)
	assert.Equal(t, "Approval", events[2].EventName)
}

func TestMaxBlock(t *testing.T) {
	_, ok := MaxBlock(nil)
	assert.False(t, ok)

	max, ok := MaxBlock([]*models.Event{
		{BlockNumber: 5},
		{BlockNumber: 11},
		{BlockNumber: 7},
	})
	assert.True(t, ok)
	assert.Equal(t, uint64(11), max)
}
