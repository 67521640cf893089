package indexer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRequestDecodesSentinelBounds(t *testing.T) {
	var req RunRequest
	err := json.Unmarshal([]byte(`{
		"contractAddress": "0x1d1f1a7280d67246665bb196f38553b469294f3a",
		"fromBlock": "earliest",
		"toBlock": "latest",
		"network": "testnet"
	}`), &req)
	require.NoError(t, err)

	assert.True(t, req.FromBlock.Earliest)
	assert.True(t, req.ToBlock.Latest)
}

func TestRunRequestDecodesNumericBounds(t *testing.T) {
	var req RunRequest
	err := json.Unmarshal([]byte(`{"fromBlock": "6700000", "toBlock": 6701000}`), &req)
	require.NoError(t, err)

	assert.Equal(t, uint64(6_700_000), req.FromBlock.Height)
	assert.Equal(t, uint64(6_701_000), req.ToBlock.Height)
	assert.False(t, req.FromBlock.Earliest)
	assert.False(t, req.ToBlock.Latest)
}

func TestRunRequestRejectsMalformedBound(t *testing.T) {
	var req RunRequest
	err := json.Unmarshal([]byte(`{"fromBlock": "pending"}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending")
}

func TestBlockBoundRoundTrip(t *testing.T) {
	for _, bound := range []BlockBound{
		NewBlockBound(6_700_000),
		{Earliest: true},
		{Latest: true},
	} {
		raw, err := json.Marshal(bound)
		require.NoError(t, err)

		var decoded BlockBound
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, bound, decoded)
	}
}

func TestResolveBlockBounds(t *testing.T) {
	headCalls := 0
	head := func() (uint64, error) {
		headCalls++
		return 7_000_000, nil
	}

	// Numeric bounds never touch the chain head.
	from, to, err := resolveBlockBounds(NewBlockBound(100), NewBlockBound(200), head)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), from)
	assert.Equal(t, uint64(200), to)
	assert.Equal(t, 0, headCalls)

	// earliest/latest resolve to 0 and the head, one head call total.
	from, to, err = resolveBlockBounds(BlockBound{Earliest: true}, BlockBound{Latest: true}, head)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), from)
	assert.Equal(t, uint64(7_000_000), to)
	assert.Equal(t, 1, headCalls)
}

func TestResolveBlockBoundsHeadFailure(t *testing.T) {
	head := func() (uint64, error) { return 0, errors.New("node down") }

	_, _, err := resolveBlockBounds(NewBlockBound(0), BlockBound{Latest: true}, head)
	require.Error(t, err)

	// Without a latest bound the failing head is never consulted.
	_, _, err = resolveBlockBounds(NewBlockBound(0), NewBlockBound(10), head)
	require.NoError(t, err)
}
