// Package repository implements all database queries for the date poll
// service. It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whenworks/whenworks/internal/model"
	"github.com/whenworks/whenworks/internal/token"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateScore is returned when one submission scores the same
// candidate date twice.
var ErrDuplicateScore = errors.New("date scored more than once in this response")

// querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so date reconciliation can run standalone or inside a larger transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// DateRepository maintains the per-event catalog of candidate dates and
// enforces the one-candidate-per-calendar-day invariant.
type DateRepository struct {
	db *pgxpool.Pool
}

// NewDateRepository constructs a DateRepository.
func NewDateRepository(db *pgxpool.Pool) *DateRepository {
	return &DateRepository{db: db}
}

// ListByEvent returns the event's candidate dates ascending by timestamp,
// or ErrNotFound if the event does not exist.
func (r *DateRepository) ListByEvent(ctx context.Context, eventID string) ([]model.EventDate, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check event: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return listDates(ctx, r.db, eventID)
}

// GetOrCreate resolves the candidate date for the timestamp's calendar day,
// creating it when the day is new to the event. An existing date is
// returned unchanged; in particular its organizer flag is never rewritten.
// Returns ErrNotFound when the event does not exist.
func (r *DateRepository) GetOrCreate(ctx context.Context, eventID string, date time.Time, suggestedByOrganizer bool) (*model.EventDate, error) {
	return r.getOrCreate(ctx, r.db, eventID, date, suggestedByOrganizer)
}

// getOrCreate is the transaction-friendly core of GetOrCreate. The insert
// uses ON CONFLICT DO NOTHING so losing a same-day race does not abort an
// enclosing transaction; the loser simply re-reads the winner's row.
func (r *DateRepository) getOrCreate(ctx context.Context, q querier, eventID string, date time.Time, suggestedByOrganizer bool) (*model.EventDate, error) {
	d := model.EventDate{
		ID:                   uuid.New().String(),
		EventID:              eventID,
		Date:                 date,
		SuggestedByOrganizer: suggestedByOrganizer,
		CreatedAt:            time.Now().UTC(),
	}
	key := model.DayKey(date)

	var inserted bool
	err := q.QueryRow(ctx,
		`INSERT INTO event_dates (id, event_id, date, day_key, suggested_by_organizer, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT event_dates_event_day_key DO NOTHING
		 RETURNING true`,
		d.ID, d.EventID, d.Date, key, d.SuggestedByOrganizer, d.CreatedAt,
	).Scan(&inserted)
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert event date: %w", err)
	}

	// The day already has a candidate date (possibly created a moment ago
	// by a concurrent submission); reuse it.
	var e model.EventDate
	err = q.QueryRow(ctx,
		`SELECT id, event_id, date, suggested_by_organizer, created_at
		 FROM event_dates
		 WHERE event_id = $1 AND day_key = $2`,
		eventID, key,
	).Scan(&e.ID, &e.EventID, &e.Date, &e.SuggestedByOrganizer, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reread event date: %w", err)
	}
	return &e, nil
}

func listDates(ctx context.Context, q querier, eventID string) ([]model.EventDate, error) {
	rows, err := q.Query(ctx,
		`SELECT id, event_id, date, suggested_by_organizer, created_at
		 FROM event_dates
		 WHERE event_id = $1
		 ORDER BY date ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list event dates: %w", err)
	}
	defer rows.Close()

	dates := []model.EventDate{}
	for rows.Next() {
		var d model.EventDate
		if err := rows.Scan(&d.ID, &d.EventID, &d.Date, &d.SuggestedByOrganizer, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db    *pgxpool.Pool
	dates *DateRepository
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool, dates *DateRepository) *EventRepository {
	return &EventRepository{db: db, dates: dates}
}

// Create inserts a new event together with its organizer-suggested dates in
// one transaction. Same-day duplicates in the input collapse to a single
// candidate date. The secret token is regenerated on the (vanishingly rare)
// collision with an existing event.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.EventWithDates, error) {
	for attempt := 0; attempt < 3; attempt++ {
		tok, err := token.New()
		if err != nil {
			return nil, fmt.Errorf("generate secret token: %w", err)
		}
		ev, err := r.createOnce(ctx, req, tok)
		if isUniqueViolation(err, "events_secret_token_key") {
			continue
		}
		return ev, err
	}
	return nil, fmt.Errorf("create event: secret token collisions on 3 attempts")
}

func (r *EventRepository) createOnce(ctx context.Context, req model.CreateEventRequest, secretToken string) (*model.EventWithDates, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ev := model.Event{
		ID:              uuid.New().String(),
		OrganizerID:     req.OrganizerID,
		Name:            req.Name,
		Details:         req.Details,
		Location:        req.Location,
		SuggestedTime:   req.SuggestedTime,
		DurationMinutes: req.DurationMinutes,
		SecretToken:     secretToken,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, organizer_id, name, details, location, suggested_time, duration_minutes, secret_token, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.OrganizerID, ev.Name, ev.Details, ev.Location, ev.SuggestedTime, ev.DurationMinutes, ev.SecretToken, ev.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "events_secret_token_key") {
			return nil, err
		}
		return nil, fmt.Errorf("insert event: %w", err)
	}

	seen := make(map[string]bool)
	dates := []model.EventDate{}
	for _, ts := range req.PreferredDates {
		var d *model.EventDate
		d, err = r.dates.getOrCreate(ctx, tx, ev.ID, ts, true)
		if err != nil {
			return nil, fmt.Errorf("insert preferred date: %w", err)
		}
		if !seen[d.ID] {
			seen[d.ID] = true
			dates = append(dates, *d)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &model.EventWithDates{Event: ev, Dates: dates}, nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT id, organizer_id, name, details, location, suggested_time, duration_minutes, secret_token, created_at
		 FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// GetByToken resolves an event by its secret token, with candidate dates
// ascending by timestamp. Returns ErrNotFound for an unknown token.
func (r *EventRepository) GetByToken(ctx context.Context, secretToken string) (*model.EventWithDates, error) {
	ev, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT id, organizer_id, name, details, location, suggested_time, duration_minutes, secret_token, created_at
		 FROM events WHERE secret_token = $1`,
		secretToken,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event by token: %w", err)
	}

	dates, err := listDates(ctx, r.db, ev.ID)
	if err != nil {
		return nil, err
	}
	return &model.EventWithDates{Event: *ev, Dates: dates}, nil
}

// ListByOrganizer returns the organizer's events newest-first, each with
// its candidate dates. Events without dates carry an empty list, never nil.
func (r *EventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]model.EventWithDates, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, organizer_id, name, details, location, suggested_time, duration_minutes, secret_token, created_at
		 FROM events
		 WHERE organizer_id = $1
		 ORDER BY created_at DESC`,
		organizerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.EventWithDates{}
	ids := []string{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, model.EventWithDates{Event: *ev, Dates: []model.EventDate{}})
		ids = append(ids, ev.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return events, nil
	}

	dateRows, err := r.db.Query(ctx,
		`SELECT id, event_id, date, suggested_by_organizer, created_at
		 FROM event_dates
		 WHERE event_id = ANY($1)
		 ORDER BY date ASC`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list event dates: %w", err)
	}
	defer dateRows.Close()

	byEvent := make(map[string][]model.EventDate)
	for dateRows.Next() {
		var d model.EventDate
		if err := dateRows.Scan(&d.ID, &d.EventID, &d.Date, &d.SuggestedByOrganizer, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event date: %w", err)
		}
		byEvent[d.EventID] = append(byEvent[d.EventID], d)
	}
	if err := dateRows.Err(); err != nil {
		return nil, err
	}
	for i := range events {
		if dates, ok := byEvent[events[i].ID]; ok {
			events[i].Dates = dates
		}
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var ev model.Event
	err := row.Scan(&ev.ID, &ev.OrganizerID, &ev.Name, &ev.Details, &ev.Location,
		&ev.SuggestedTime, &ev.DurationMinutes, &ev.SecretToken, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
