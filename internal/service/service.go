// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/whenworks/whenworks/internal/model"
	"github.com/whenworks/whenworks/internal/repository"
)

// ErrValidation marks malformed or missing caller input. Handlers map it
// to HTTP 400.
var ErrValidation = errors.New("invalid input")

// EventStore is the persistence surface for events and their candidate
// dates.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.EventWithDates, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetByToken(ctx context.Context, secretToken string) (*model.EventWithDates, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]model.EventWithDates, error)
}

// ResponseStore persists attendee submissions atomically.
type ResponseStore interface {
	Create(ctx context.Context, eventID string, req model.CreateResponseRequest) (*model.AttendeeResponse, error)
}

// AvailabilityStore reads the recorded scores joined to their dates.
type AvailabilityStore interface {
	ListForEvent(ctx context.Context, eventID string) ([]model.AvailabilityRow, error)
}

// SchedulerService orchestrates event scheduling operations.
type SchedulerService struct {
	events       EventStore
	responses    ResponseStore
	availability AvailabilityStore
	validate     *validator.Validate
}

// NewSchedulerService constructs a SchedulerService with its dependencies.
func NewSchedulerService(events EventStore, responses ResponseStore, availability AvailabilityStore) *SchedulerService {
	return &SchedulerService{
		events:       events,
		responses:    responses,
		availability: availability,
		validate:     validator.New(),
	}
}

// CreateEvent validates the request and creates the event together with
// its organizer-suggested candidate dates. Preferred dates falling on the
// same calendar day collapse to one candidate date.
func (s *SchedulerService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.EventWithDates, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	ev, err := s.events.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

// GetEventByToken resolves an event by its secret token for the
// attendee-facing flow.
func (s *SchedulerService) GetEventByToken(ctx context.Context, secretToken string) (*model.EventWithDates, error) {
	if secretToken == "" {
		return nil, fmt.Errorf("%w: secret token is required", ErrValidation)
	}
	ev, err := s.events.GetByToken(ctx, secretToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get event by token: %w", err)
	}
	return ev, nil
}

// GetEventsByOrganizer lists the organizer's events with their candidate
// dates. An unknown organizer yields an empty list, not an error.
func (s *SchedulerService) GetEventsByOrganizer(ctx context.Context, organizerID string) ([]model.EventWithDates, error) {
	if organizerID == "" {
		return nil, fmt.Errorf("%w: organizer id is required", ErrValidation)
	}
	events, err := s.events.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.EventWithDates{}
	}
	return events, nil
}

// CreateAttendeeResponse validates and records one attendee submission:
// the response row, any newly suggested dates, and one availability row
// per scored date, all as one atomic unit. Scoring the same calendar day
// twice in a single submission is rejected rather than overwritten.
func (s *SchedulerService) CreateAttendeeResponse(ctx context.Context, secretToken string, req model.CreateResponseRequest) (*model.AttendeeResponse, error) {
	req.AttendeeName = strings.TrimSpace(req.AttendeeName)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	seen := make(map[string]bool)
	for _, sd := range req.DateAvailabilities {
		key := model.DayKey(sd.Date)
		if seen[key] {
			return nil, fmt.Errorf("%w: date %s scored more than once", ErrValidation, key)
		}
		seen[key] = true
	}

	ev, err := s.events.GetByToken(ctx, secretToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve event: %w", err)
	}

	resp, err := s.responses.Create(ctx, ev.ID, req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateScore) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("record response: %w", err)
	}
	return resp, nil
}

// GetEventAvailability builds the organizer dashboard for one event: every
// candidate date exactly once with its recorded scores, response count,
// and mean score (0 for unscored dates).
func (s *SchedulerService) GetEventAvailability(ctx context.Context, eventID string) (*model.EventAvailability, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrValidation)
	}
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	rows, err := s.availability.ListForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return &model.EventAvailability{
		Event: *ev,
		Dates: aggregateRows(rows),
	}, nil
}

// aggregateRows groups join rows by candidate date and computes per-date
// statistics, preserving the order in which dates first appear.
func aggregateRows(rows []model.AvailabilityRow) []model.DateAggregate {
	type bucket struct {
		date      time.Time
		byOrg     bool
		responses []model.DateResponse
		sum       int
	}
	order := []string{}
	buckets := make(map[string]*bucket)

	for _, row := range rows {
		b, ok := buckets[row.DateID]
		if !ok {
			b = &bucket{
				date:      row.Date,
				byOrg:     row.SuggestedByOrganizer,
				responses: []model.DateResponse{},
			}
			buckets[row.DateID] = b
			order = append(order, row.DateID)
		}
		if row.AttendeeName != nil && row.Score != nil {
			b.responses = append(b.responses, model.DateResponse{
				AttendeeName: *row.AttendeeName,
				Score:        *row.Score,
			})
			b.sum += *row.Score
		}
	}

	dates := make([]model.DateAggregate, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		agg := model.DateAggregate{
			Date:                 b.date,
			SuggestedByOrganizer: b.byOrg,
			Responses:            b.responses,
			ResponseCount:        len(b.responses),
		}
		if agg.ResponseCount > 0 {
			agg.AverageScore = float64(b.sum) / float64(agg.ResponseCount)
		}
		dates = append(dates, agg)
	}
	return dates
}
