package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/internal/network"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// fakeHeads stubs the network registry for advisor tests
type fakeHeads struct {
	head    uint64
	headErr error
}

func (f *fakeHeads) Resolve(name string) (network.Params, error) {
	if name != "testnet" && name != "mainnet" {
		return network.Params{}, utils.NewAppError(utils.ErrCodeValidation, "Unknown network")
	}
	return network.Params{Name: name}, nil
}

func (f *fakeHeads) ChainHead(ctx context.Context, name string) (uint64, error) {
	return f.head, f.headErr
}

func advisorConfig() *config.IndexerConfig {
	return &config.IndexerConfig{
		MaxBlockWindow: 500,
		MaxBlockSpan:   50_000,
		SmartWindow:    1_000,
		FallbackHead:   6_800_000,
	}
}

func TestSuggestEndsAtLatestIndexedBlock(t *testing.T) {
	store := newSeededStore(t, 1) // one event at block 100
	advisor := NewAdvisor(store, &fakeHeads{head: 9_999_999}, advisorConfig())

	suggestion, err := advisor.Suggest(context.Background(), testContract, "testnet", nil)
	require.NoError(t, err)

	// The range looks back from the max stored height, never past it.
	assert.Equal(t, uint64(100), suggestion.ToBlock)
	assert.Equal(t, uint64(0), suggestion.FromBlock)
	require.NotNil(t, suggestion.LatestIndexedBlock)
	assert.Equal(t, uint64(100), *suggestion.LatestIndexedBlock)
	assert.True(t, suggestion.IsOptimalRange)
}

func TestSuggestLookBackWindowFromHistory(t *testing.T) {
	store := newSeededStore(t, 0)
	ctx := context.Background()

	contract, err := store.UpsertContract(ctx, &models.Contract{
		Address: testContract,
		Network: "testnet",
		ABI:     "[]",
		Active:  true,
	})
	require.NoError(t, err)
	_, err = store.InsertEvents(ctx, []*models.Event{{
		BlockNumber:     6_700_500,
		BlockHash:       "0xcafe",
		TxHash:          "0xtx",
		LogIndex:        0,
		ContractAddress: testContract,
		EventName:       "Transfer",
		EventSig:        "0xddf2",
		Topics:          []string{"0xddf2"},
		Data:            "0x",
		Raw:             "{}",
		Network:         "testnet",
	}}, contract.ID, "testnet")
	require.NoError(t, err)

	advisor := NewAdvisor(store, &fakeHeads{head: 9_999_999}, advisorConfig())
	suggestion, err := advisor.Suggest(ctx, testContract, "testnet", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(6_700_500), suggestion.ToBlock)
	assert.Equal(t, uint64(6_699_501), suggestion.FromBlock)
	assert.True(t, suggestion.IsOptimalRange)
}

func TestSuggestColdStartUsesChainHead(t *testing.T) {
	store := newSeededStore(t, 0)
	advisor := NewAdvisor(store, &fakeHeads{head: 7_000_000}, advisorConfig())

	suggestion, err := advisor.Suggest(context.Background(), testContract, "testnet", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(6_999_001), suggestion.FromBlock)
	assert.Equal(t, uint64(7_000_000), suggestion.ToBlock)
	assert.Nil(t, suggestion.LatestIndexedBlock)
	assert.False(t, suggestion.IsOptimalRange)
}

func TestSuggestDegradedWhenHeadUnavailable(t *testing.T) {
	store := newSeededStore(t, 0)
	advisor := NewAdvisor(store, &fakeHeads{headErr: errors.New("node down")}, advisorConfig())

	suggestion, err := advisor.Suggest(context.Background(), testContract, "testnet", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(6_799_001), suggestion.FromBlock)
	assert.Equal(t, uint64(6_800_000), suggestion.ToBlock)
	assert.False(t, suggestion.IsOptimalRange)
	assert.Contains(t, suggestion.Message, "fallback")
}

func TestSuggestLowHeadClampsToGenesis(t *testing.T) {
	store := newSeededStore(t, 0)
	advisor := NewAdvisor(store, &fakeHeads{head: 10}, advisorConfig())

	suggestion, err := advisor.Suggest(context.Background(), testContract, "testnet", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), suggestion.FromBlock)
	assert.Equal(t, uint64(10), suggestion.ToBlock)
}

func TestSuggestPerEventName(t *testing.T) {
	store := newSeededStore(t, 3) // Transfer events at blocks 100..102
	advisor := NewAdvisor(store, &fakeHeads{head: 7_000_000}, advisorConfig())
	ctx := context.Background()

	name := "Transfer"
	suggestion, err := advisor.Suggest(ctx, testContract, "testnet", &name)
	require.NoError(t, err)
	assert.True(t, suggestion.IsOptimalRange)
	assert.Equal(t, uint64(102), suggestion.ToBlock)

	// No history for this event name, falls back to the head window.
	other := "Approval"
	suggestion, err = advisor.Suggest(ctx, testContract, "testnet", &other)
	require.NoError(t, err)
	assert.False(t, suggestion.IsOptimalRange)
}

func TestSuggestRejectsBadInputs(t *testing.T) {
	store := newSeededStore(t, 0)
	advisor := NewAdvisor(store, &fakeHeads{head: 100}, advisorConfig())
	ctx := context.Background()

	_, err := advisor.Suggest(ctx, "not-an-address", "testnet", nil)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	_, err = advisor.Suggest(ctx, testContract, "devnet", nil)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
}
