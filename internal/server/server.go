package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/indexer"
	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/internal/network"
	"github.com/smartdevs17/evm-event-indexer/internal/query"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// Server exposes the ingestion and query API over HTTP
type Server struct {
	config   *config.ServerConfig
	router   *mux.Router
	server   *http.Server
	runner   *indexer.Runner
	querySvc *query.Service
	advisor  *query.Advisor
	store    storage.Store
	registry *network.Registry

	logger         *logrus.Logger
	metricsManager *metrics.Manager
	startTime      time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *config.ServerConfig, runner *indexer.Runner, querySvc *query.Service, advisor *query.Advisor, store storage.Store, registry *network.Registry, metricsManager *metrics.Manager) *Server {
	s := &Server{
		config:         cfg,
		router:         mux.NewRouter(),
		runner:         runner,
		querySvc:       querySvc,
		advisor:        advisor,
		store:          store,
		registry:       registry,
		logger:         utils.GetLogger(),
		metricsManager: metricsManager,
		startTime:      time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.metricsMiddleware)
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Ingestion
	api.HandleFunc("/index", s.handleIndex).Methods("POST")

	// Contracts
	api.HandleFunc("/contracts", s.handleRegisterContract).Methods("POST")
	api.HandleFunc("/contracts", s.handleListContracts).Methods("GET")
	api.HandleFunc("/contracts/{address}", s.handleGetContract).Methods("GET")
	api.HandleFunc("/contracts/{address}/events", s.handleContractEvents).Methods("GET")
	api.HandleFunc("/contracts/{address}/event-names", s.handleEventNames).Methods("GET")
	api.HandleFunc("/contracts/{address}/smart-range", s.handleSmartRange).Methods("GET")

	// Events and checkpoints
	api.HandleFunc("/events", s.handleListEvents).Methods("GET")
	api.HandleFunc("/checkpoints", s.handleCheckpoints).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
		api.HandleFunc("/health", s.handleHealth).Methods("GET")
	}
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
}

// Handler returns the configured HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return utils.NewAppError(utils.ErrCodeInternal, "HTTP server failed", err.Error())
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleIndex runs one on-demand ingestion pass over a block range
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexer.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"events":  result.Events,
		"metadata": map[string]interface{}{
			"contractAddress": result.ContractAddr,
			"eventsTracked":   result.EventsTracked,
			"network":         result.Network,
			"blockRange": indexer.BlockRange{
				From: result.FromBlock,
				To:   result.ToBlock,
			},
			"totalEvents":  result.TotalEvents,
			"inserted":     result.Inserted,
			"totalChunks":  result.TotalChunks,
			"failedChunks": result.FailedChunks,
		},
	})
}

// handleRegisterContract stores a contract without running ingestion
func (s *Server) handleRegisterContract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
		Network string `json:"network"`
		ABI     string `json:"abi"`
		Name    string `json:"name"`
		Active  *bool  `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	params, err := s.registry.Resolve(body.Network)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if body.ABI == "" {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Contract interface is required"))
		return
	}

	active := true
	if body.Active != nil {
		active = *body.Active
	}

	contract, err := s.store.UpsertContract(r.Context(), &models.Contract{
		Address: body.Address,
		Network: params.Name,
		ABI:     body.ABI,
		Name:    body.Name,
		Active:  active,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"contract": contract,
	})
}

// handleListContracts lists registered contracts
func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	var netFilter *string
	if n := r.URL.Query().Get("network"); n != "" {
		params, err := s.registry.Resolve(n)
		if err != nil {
			s.writeError(w, err)
			return
		}
		netFilter = &params.Name
	}

	contracts, err := s.store.GetContracts(r.Context(), netFilter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contracts == nil {
		contracts = []*models.Contract{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"contracts": contracts,
		"count":     len(contracts),
	})
}

// handleGetContract returns one contract by address
func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	netName, err := s.resolveNetworkParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contract, err := s.store.GetContract(r.Context(), address, netName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contract == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found", address))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"contract": contract,
	})
}

// handleContractEvents returns one page of a contract's stored events
func (s *Server) handleContractEvents(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	netName, err := s.resolveNetworkParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var eventName *string
	if e := r.URL.Query().Get("event"); e != "" {
		eventName = &e
	}
	page, limit := paginationParams(r)

	result, err := s.querySvc.GetContractEvents(r.Context(), address, netName, eventName, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"events":     result.Events,
		"pagination": result.Pagination,
	})
}

// handleListEvents returns one page of events across all contracts
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := s.eventFilterFromQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	page, limit := paginationParams(r)

	result, err := s.querySvc.GetEvents(r.Context(), filter, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"events":     result.Events,
		"pagination": result.Pagination,
	})
}

// handleEventNames lists the distinct event names stored for a contract
func (s *Server) handleEventNames(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	netName, err := s.resolveNetworkParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	names, err := s.querySvc.GetEventNames(r.Context(), address, netName)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"eventNames": names,
	})
}

// handleSmartRange suggests the next ingestion range for a contract
func (s *Server) handleSmartRange(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	netName, err := s.resolveNetworkParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var eventName *string
	if e := r.URL.Query().Get("event"); e != "" {
		eventName = &e
	}

	suggestion, err := s.advisor.Suggest(r.Context(), address, netName, eventName)
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, limit := paginationParams(r)
	events, err := s.querySvc.GetContractEvents(r.Context(), address, netName, eventName, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"smartRange": suggestion,
		"events":     events.Events,
		"pagination": events.Pagination,
	})
}

// handleCheckpoints lists all indexing checkpoints
func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := s.store.GetCheckpoints(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if checkpoints == nil {
		checkpoints = []*models.IndexingCheckpoint{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"checkpoints": checkpoints,
	})
}

// handleStats returns storage statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
		"uptime":  time.Since(s.startTime).String(),
	})
}

// handleHealth reports liveness of the storage backend
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := s.store.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		if s.metricsManager != nil {
			s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", false)
		}
	} else if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", true)
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
	})
}

// resolveNetworkParam reads the network query parameter, defaulting to mainnet
func (s *Server) resolveNetworkParam(r *http.Request) (string, error) {
	n := r.URL.Query().Get("network")
	if n == "" {
		n = network.Mainnet
	}
	params, err := s.registry.Resolve(n)
	if err != nil {
		return "", err
	}
	return params.Name, nil
}

// eventFilterFromQuery parses the optional event filters from query parameters
func (s *Server) eventFilterFromQuery(r *http.Request) (models.EventFilter, error) {
	var filter models.EventFilter
	q := r.URL.Query()

	if v := q.Get("contract"); v != "" {
		filter.ContractAddress = &v
	}
	if v := q.Get("event"); v != "" {
		filter.EventName = &v
	}
	if v := q.Get("network"); v != "" {
		params, err := s.registry.Resolve(v)
		if err != nil {
			return filter, err
		}
		filter.Network = &params.Name
	}
	if v := q.Get("fromBlock"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid fromBlock", v)
		}
		filter.FromBlock = &n
	}
	if v := q.Get("toBlock"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid toBlock", v)
		}
		filter.ToBlock = &n
	}
	if v := q.Get("fromDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid fromDate, expected RFC3339", v)
		}
		filter.FromDate = &ts
	}
	if v := q.Get("toDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid toDate, expected RFC3339", v)
		}
		filter.ToDate = &ts
	}

	return filter, nil
}

// paginationParams reads page and limit query parameters
func paginationParams(r *http.Request) (int, int) {
	page := 1
	limit := query.DefaultPageLimit

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	return page, limit
}

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode response")
	}
}

// writeError maps an application error to an HTTP status and envelope
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := utils.ErrorCode(err)

	status := http.StatusInternalServerError
	switch code {
	case utils.ErrCodeValidation, utils.ErrCodeRangeTooLarge:
		status = http.StatusBadRequest
	case utils.ErrCodeNotFound:
		status = http.StatusNotFound
	case utils.ErrCodeConnection, utils.ErrCodeFetch:
		status = http.StatusBadGateway
	}

	body := map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    code,
			"message": err.Error(),
		},
	}
	if appErr, ok := err.(*utils.AppError); ok {
		body["error"] = map[string]interface{}{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
	}

	s.writeJSON(w, status, body)
}
