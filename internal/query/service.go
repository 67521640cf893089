package query

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
)

// Pagination describes one page of a result set.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalEvents int64 `json:"totalEvents"`
	TotalPages  int64 `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// EventPage is one page of stored events in reverse chain order.
type EventPage struct {
	Events     []*models.Event `json:"events"`
	Pagination Pagination      `json:"pagination"`
}

// Service answers read queries over the stored event history.
type Service struct {
	store  storage.Store
	logger *logrus.Logger
}

// NewService creates a query service backed by a store.
func NewService(store storage.Store) *Service {
	return &Service{
		store:  store,
		logger: utils.GetLogger(),
	}
}

// GetEvents returns one page of events matching the filter, newest block
// first with ties in ascending log index. Pages past the end of the result
// set return an empty page with consistent counters rather than an error.
func (s *Service) GetEvents(ctx context.Context, filter models.EventFilter, page, limit int) (*EventPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	total, err := s.store.GetEventCount(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}

	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	events, err := s.store.GetEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.Event{}
	}

	return &EventPage{
		Events: events,
		Pagination: Pagination{
			Page:        page,
			Limit:       limit,
			TotalEvents: total,
			TotalPages:  totalPages,
			HasNextPage: int64(page) < totalPages,
			HasPrevPage: page > 1,
		},
	}, nil
}

// GetContractEvents returns one page of events for a single contract.
func (s *Service) GetContractEvents(ctx context.Context, contractAddress, network string, eventName *string, page, limit int) (*EventPage, error) {
	filter := models.EventFilter{
		ContractAddress: &contractAddress,
		EventName:       eventName,
	}
	if network != "" {
		filter.Network = &network
	}
	return s.GetEvents(ctx, filter, page, limit)
}

// GetEventNames lists the distinct event names stored for a contract.
func (s *Service) GetEventNames(ctx context.Context, contractAddress, network string) ([]string, error) {
	return s.store.GetEventNames(ctx, contractAddress, network)
}
