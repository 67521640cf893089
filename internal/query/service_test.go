package query

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
)

const testContract = "0x1d1f1a7280d67246665bb196f38553b469294f3a"

func newSeededStore(t *testing.T, eventCount int) storage.Store {
	t.Helper()

	store := storage.NewSQLiteStore(&storage.StoreConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "events.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	}, nil)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	contract, err := store.UpsertContract(ctx, &models.Contract{
		Address: testContract,
		Network: "testnet",
		ABI:     "[]",
		Active:  true,
	})
	require.NoError(t, err)

	events := make([]*models.Event, 0, eventCount)
	for i := 0; i < eventCount; i++ {
		events = append(events, &models.Event{
			BlockNumber:     uint64(100 + i),
			BlockHash:       "0xcafe",
			TxHash:          fmt.Sprintf("0xtx%d", i),
			LogIndex:        0,
			ContractAddress: testContract,
			EventName:       "Transfer",
			EventSig:        "0xddf2",
			Topics:          []string{"0xddf2"},
			Data:            "0x",
			Raw:             "{}",
			Network:         "testnet",
		})
	}
	_, err = store.InsertEvents(ctx, events, contract.ID, "testnet")
	require.NoError(t, err)

	return store
}

func TestGetEventsPagination(t *testing.T) {
	svc := NewService(newSeededStore(t, 5))
	ctx := context.Background()

	page1, err := svc.GetEvents(ctx, models.EventFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1.Events, 2)
	assert.Equal(t, int64(5), page1.Pagination.TotalEvents)
	assert.Equal(t, int64(3), page1.Pagination.TotalPages)
	assert.True(t, page1.Pagination.HasNextPage)
	assert.False(t, page1.Pagination.HasPrevPage)

	// Newest block first.
	assert.Equal(t, uint64(104), page1.Events[0].BlockNumber)
	assert.Equal(t, uint64(103), page1.Events[1].BlockNumber)

	page3, err := svc.GetEvents(ctx, models.EventFilter{}, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Events, 1)
	assert.False(t, page3.Pagination.HasNextPage)
	assert.True(t, page3.Pagination.HasPrevPage)
}

func TestGetEventsPagePastEnd(t *testing.T) {
	svc := NewService(newSeededStore(t, 5))

	page, err := svc.GetEvents(context.Background(), models.EventFilter{}, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.Equal(t, int64(5), page.Pagination.TotalEvents)
	assert.Equal(t, int64(3), page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNextPage)
	assert.True(t, page.Pagination.HasPrevPage)
}

func TestGetEventsDefaultsAndCaps(t *testing.T) {
	svc := NewService(newSeededStore(t, 3))
	ctx := context.Background()

	page, err := svc.GetEvents(ctx, models.EventFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, DefaultPageLimit, page.Pagination.Limit)
	assert.Len(t, page.Events, 3)

	page, err = svc.GetEvents(ctx, models.EventFilter{}, 1, MaxPageLimit+1)
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, page.Pagination.Limit)
}

func TestGetEventsEmptyStore(t *testing.T) {
	svc := NewService(newSeededStore(t, 0))

	page, err := svc.GetEvents(context.Background(), models.EventFilter{}, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Events)
	assert.Empty(t, page.Events)
	assert.Equal(t, int64(0), page.Pagination.TotalEvents)
	assert.Equal(t, int64(0), page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNextPage)
	assert.False(t, page.Pagination.HasPrevPage)

	// Previous-page reporting depends only on the requested page number.
	page, err = svc.GetEvents(context.Background(), models.EventFilter{}, 2, 10)
	require.NoError(t, err)
	assert.True(t, page.Pagination.HasPrevPage)
	assert.False(t, page.Pagination.HasNextPage)
}

func TestGetContractEvents(t *testing.T) {
	svc := NewService(newSeededStore(t, 4))

	name := "Transfer"
	page, err := svc.GetContractEvents(context.Background(), testContract, "testnet", &name, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Events, 4)

	other := "Approval"
	page, err = svc.GetContractEvents(context.Background(), testContract, "testnet", &other, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
}
