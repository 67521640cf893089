package network

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// Supported network identifiers.
const (
	Mainnet = "mainnet"
	Testnet = "testnet"
)

// Params holds the resolved chain parameters for one network.
type Params struct {
	Name           string        `json:"name"`
	ChainID        uint64        `json:"chain_id"`
	RPCURL         string        `json:"rpc_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// Registry resolves network identifiers to chain parameters and owns one
// RPC client per network. It is built once at startup and passed by
// reference to every component that needs upstream access.
type Registry struct {
	params map[string]Params

	mu      sync.Mutex
	clients map[string]*ethclient.Client

	logger         *logrus.Logger
	metricsManager *metrics.Manager
}

// NewRegistry builds a registry from configuration.
func NewRegistry(cfg *config.NetworksConfig, metricsManager *metrics.Manager) *Registry {
	return &Registry{
		params: map[string]Params{
			Mainnet: {
				Name:           Mainnet,
				ChainID:        cfg.Mainnet.ChainID,
				RPCURL:         cfg.Mainnet.RPCURL,
				RequestTimeout: cfg.Mainnet.RequestTimeout,
			},
			Testnet: {
				Name:           Testnet,
				ChainID:        cfg.Testnet.ChainID,
				RPCURL:         cfg.Testnet.RPCURL,
				RequestTimeout: cfg.Testnet.RequestTimeout,
			},
		},
		clients:        make(map[string]*ethclient.Client),
		logger:         utils.GetLogger(),
		metricsManager: metricsManager,
	}
}

// Resolve maps a network identifier to its chain parameters.
func (r *Registry) Resolve(network string) (Params, error) {
	p, ok := r.params[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return Params{}, utils.NewAppError(utils.ErrCodeValidation,
			"Unknown network",
			fmt.Sprintf("network must be one of: %s, %s", Mainnet, Testnet))
	}
	return p, nil
}

// Client returns the RPC client for a network, dialing it on first use.
func (r *Registry) Client(ctx context.Context, network string) (*ethclient.Client, error) {
	p, err := r.Resolve(network)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[p.Name]; ok {
		return client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.RequestTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, p.RPCURL)
	if err != nil {
		if r.metricsManager != nil {
			r.metricsManager.GetPrometheusMetrics().RecordConnectionError(p.Name, "dial_failed")
		}
		return nil, utils.NewAppError(utils.ErrCodeConnection,
			"Failed to connect to RPC node", err.Error())
	}

	r.clients[p.Name] = client
	r.logger.WithFields(logrus.Fields{
		"network": p.Name,
		"url":     p.RPCURL,
	}).Info("Connected to RPC node")

	return client, nil
}

// ChainHead returns the live chain head for a network.
func (r *Registry) ChainHead(ctx context.Context, network string) (uint64, error) {
	p, err := r.Resolve(network)
	if err != nil {
		return 0, err
	}

	client, err := r.Client(ctx, network)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.RequestTimeout)
	defer cancel()

	start := time.Now()
	head, err := client.BlockNumber(callCtx)
	if r.metricsManager != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metricsManager.GetPrometheusMetrics().RecordRPCRequest(p.Name, "eth_blockNumber", status, time.Since(start))
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeConnection,
			"Failed to fetch chain head", err.Error())
	}

	return head, nil
}

// HealthCheck verifies connectivity and chain identity for a network.
func (r *Registry) HealthCheck(ctx context.Context, network string) error {
	p, err := r.Resolve(network)
	if err != nil {
		return err
	}

	client, err := r.Client(ctx, network)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(callCtx)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get chain ID", err.Error())
	}
	if p.ChainID != 0 && chainID.Uint64() != p.ChainID {
		return utils.NewAppError(utils.ErrCodeConnection,
			"Chain ID mismatch",
			fmt.Sprintf("expected %d, got %d", p.ChainID, chainID.Uint64()))
	}

	return nil
}

// Networks lists the identifiers the registry can resolve.
func (r *Registry) Networks() []string {
	return []string{Mainnet, Testnet}
}

// Close closes every dialed client.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, client := range r.clients {
		client.Close()
		delete(r.clients, name)
	}
	r.logger.Info("Network registry closed")
}
