package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/indexer"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/internal/network"
	"github.com/smartdevs17/evm-event-indexer/internal/query"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
)

const testContract = "0x1d1f1a7280d67246665bb196f38553b469294f3a"

const erc20ABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}],
	 "name":"Transfer","type":"event"}
]`

func newTestServer(t *testing.T) (*Server, storage.Store) {
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

	networks := &config.NetworksConfig{
		Mainnet: config.NetworkConfig{RPCURL: "http://127.0.0.1:1", ChainID: 30, RequestTimeout: time.Second},
		Testnet: config.NetworkConfig{RPCURL: "http://127.0.0.1:1", ChainID: 31, RequestTimeout: time.Second},
	}
	indexerCfg := &config.IndexerConfig{
		MaxBlockWindow: 500,
		MaxBlockSpan:   50_000,
		SmartWindow:    1_000,
		FallbackHead:   6_800_000,
	}

	registry := network.NewRegistry(networks, nil)
	runner := indexer.NewRunner(registry, store, indexerCfg, nil)
	querySvc := query.NewService(store)
	advisor := query.NewAdvisor(store, registry, indexerCfg)

	srv := NewServer(&config.ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
		EnableMetrics: false,
		EnableHealth:  true,
	}, runner, querySvc, advisor, store, registry, nil)

	return srv, store
}

func seedEvents(t *testing.T, store storage.Store, count int) {
	t.Helper()
	ctx := context.Background()

	contract, err := store.UpsertContract(ctx, &models.Contract{
		Address: testContract,
		Network: "testnet",
		ABI:     erc20ABI,
		Name:    "Token",
		Active:  true,
	})
	require.NoError(t, err)

	events := make([]*models.Event, 0, count)
	for i := 0; i < count; i++ {
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
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}

	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestIndexRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/index", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexRejectsInvalidAddress(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodPost, "/api/v1/index", map[string]interface{}{
		"contractAddress": "nonsense",
		"abi":             erc20ABI,
		"events":          []string{"Transfer"},
		"fromBlock":       "100",
		"toBlock":         "200",
		"network":         "testnet",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestIndexRejectsOversizedRange(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodPost, "/api/v1/index", map[string]interface{}{
		"contractAddress": testContract,
		"abi":             erc20ABI,
		"events":          []string{"Transfer"},
		"fromBlock":       "0",
		"toBlock":         "60000",
		"network":         "testnet",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "RANGE_TOO_LARGE", errObj["code"])
}

func TestIndexRejectsUnknownEvent(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodPost, "/api/v1/index", map[string]interface{}{
		"contractAddress": testContract,
		"abi":             erc20ABI,
		"events":          []string{"Transfer", "Approval"},
		"fromBlock":       "100",
		"toBlock":         "200",
		"network":         "testnet",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Contains(t, errObj["message"], "Approval")
}

func TestIndexResolvesSentinelBounds(t *testing.T) {
	srv, _ := newTestServer(t)

	// Sentinels decode fine; resolving "latest" consults the chain head,
	// which is unreachable here, so the run fails upstream rather than at
	// the JSON layer.
	rec, body := doRequest(t, srv, http.MethodPost, "/api/v1/index", map[string]interface{}{
		"contractAddress": testContract,
		"abi":             erc20ABI,
		"events":          []string{"Transfer"},
		"fromBlock":       "earliest",
		"toBlock":         "latest",
		"network":         "testnet",
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "CONNECTION_ERROR", errObj["code"])
}

func TestListEventsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedEvents(t, store, 3)

	rec, body := doRequest(t, srv, http.MethodGet, "/api/v1/events?limit=2&page=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	events := body["events"].([]interface{})
	assert.Len(t, events, 2)

	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["totalEvents"])
	assert.Equal(t, float64(2), pagination["totalPages"])
	assert.Equal(t, true, pagination["hasNextPage"])

	// Block heights are serialized as decimal strings.
	first := events[0].(map[string]interface{})
	assert.Equal(t, "102", first["block_number"])
}

func TestListEventsRejectsBadBlockParam(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doRequest(t, srv, http.MethodGet, "/api/v1/events?fromBlock=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContractEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	seedEvents(t, store, 2)

	rec, body := doRequest(t, srv, http.MethodGet, "/api/v1/contracts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = doRequest(t, srv, http.MethodGet, "/api/v1/contracts/"+testContract+"?network=testnet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	contract := body["contract"].(map[string]interface{})
	assert.Equal(t, testContract, contract["address"])

	rec, _ = doRequest(t, srv, http.MethodGet, "/api/v1/contracts/0x0000000000000000000000000000000000000001?network=testnet", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doRequest(t, srv, http.MethodGet, "/api/v1/contracts/"+testContract+"/events?network=testnet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["events"].([]interface{}), 2)

	rec, body = doRequest(t, srv, http.MethodGet, "/api/v1/contracts/"+testContract+"/event-names?network=testnet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Transfer"}, body["eventNames"])
}

func TestRegisterContractEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doRequest(t, srv, http.MethodPost, "/api/v1/contracts", map[string]interface{}{
		"address": testContract,
		"network": "testnet",
		"abi":     erc20ABI,
		"name":    "Token",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/contracts", map[string]interface{}{
		"address": testContract,
		"network": "devnet",
		"abi":     erc20ABI,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSmartRangeEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedEvents(t, store, 3) // history up to block 102

	rec, body := doRequest(t, srv, http.MethodGet, "/api/v1/contracts/"+testContract+"/smart-range?network=testnet", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The suggested range looks back from the max stored height.
	sr := body["smartRange"].(map[string]interface{})
	assert.Equal(t, "102", sr["toBlock"])
	assert.Equal(t, "0", sr["fromBlock"])
	assert.Equal(t, "102", sr["latestIndexedBlock"])
	assert.Equal(t, true, sr["isOptimalRange"])

	// The descriptor ships with one page of the stored events.
	events := body["events"].([]interface{})
	assert.Len(t, events, 3)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["totalEvents"])
}

func TestCheckpointsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedEvents(t, store, 1)
	require.NoError(t, store.UpdateCheckpoint(context.Background(), testContract, "testnet", 102))

	rec, body := doRequest(t, srv, http.MethodGet, "/api/v1/checkpoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	checkpoints := body["checkpoints"].([]interface{})
	require.Len(t, checkpoints, 1)
	cp := checkpoints[0].(map[string]interface{})
	assert.Equal(t, "102", cp["last_indexed_block"])
}

func TestStatsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedEvents(t, store, 2)

	rec, body := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total_events"])
	assert.Equal(t, float64(1), stats["total_contracts"])
}
