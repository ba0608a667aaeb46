package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whenworks/whenworks/internal/model"
)

// ResponseRepository persists attendee submissions.
type ResponseRepository struct {
	db    *pgxpool.Pool
	dates *DateRepository
}

// NewResponseRepository constructs a ResponseRepository.
func NewResponseRepository(db *pgxpool.Pool, dates *DateRepository) *ResponseRepository {
	return &ResponseRepository{db: db, dates: dates}
}

// Create materializes one attendee submission as a single transaction: the
// response row, any attendee-suggested candidate dates (hinted or arriving
// attached to a score), and one availability row per scored date. Any
// failure rolls the whole submission back.
//
// Returns ErrDuplicateScore when two scored entries resolve to the same
// candidate date, and ErrNotFound when the event does not exist.
func (r *ResponseRepository) Create(ctx context.Context, eventID string, req model.CreateResponseRequest) (*model.AttendeeResponse, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	resp := model.AttendeeResponse{
		ID:            uuid.New().String(),
		EventID:       eventID,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO attendee_responses (id, event_id, attendee_name, attendee_email, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		resp.ID, resp.EventID, resp.AttendeeName, resp.AttendeeEmail, resp.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert attendee response: %w", err)
	}

	// Hinted new dates first, so a bare suggestion survives even when the
	// attendee scored nothing. Same-day duplicates are absorbed silently.
	for _, ts := range req.NewDates {
		if _, err = r.dates.getOrCreate(ctx, tx, eventID, ts, false); err != nil {
			return nil, fmt.Errorf("insert suggested date: %w", err)
		}
	}

	for _, sd := range req.DateAvailabilities {
		var d *model.EventDate
		d, err = r.dates.getOrCreate(ctx, tx, eventID, sd.Date, false)
		if err != nil {
			return nil, fmt.Errorf("resolve scored date: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO date_availabilities (id, attendee_response_id, event_date_id, score, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), resp.ID, d.ID, sd.Score, time.Now().UTC(),
		)
		if err != nil {
			if isUniqueViolation(err, "date_availabilities_response_date_key") {
				err = ErrDuplicateScore
				return nil, err
			}
			return nil, fmt.Errorf("insert date availability: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &resp, nil
}

// AvailabilityRepository reads the recorded scores for aggregation.
type AvailabilityRepository struct {
	db *pgxpool.Pool
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListForEvent returns one row per (candidate date, recorded score) pair,
// and a single row with nil attendee fields for dates nobody has scored,
// so every candidate date of the event is represented. Rows come back
// grouped by date, ascending by timestamp.
func (r *AvailabilityRepository) ListForEvent(ctx context.Context, eventID string) ([]model.AvailabilityRow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT d.id, d.date, d.suggested_by_organizer, ar.attendee_name, da.score
		 FROM event_dates d
		 LEFT JOIN date_availabilities da ON da.event_date_id = d.id
		 LEFT JOIN attendee_responses ar ON ar.id = da.attendee_response_id
		 WHERE d.event_id = $1
		 ORDER BY d.date ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	out := []model.AvailabilityRow{}
	for rows.Next() {
		var row model.AvailabilityRow
		if err := rows.Scan(&row.DateID, &row.Date, &row.SuggestedByOrganizer, &row.AttendeeName, &row.Score); err != nil {
			return nil, fmt.Errorf("scan availability row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
