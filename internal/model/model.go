// Package model defines the core domain types for the date poll service.
package model

import "time"

// DayKey maps a timestamp to its canonical calendar-day key. Two
// timestamps on the same UTC calendar day produce the same key regardless
// of time of day; this key is the sole deduplication criterion for
// candidate dates within an event.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Event is a group event created by an organizer. Attendees reach it
// through its secret token rather than its id.
type Event struct {
	ID              string    `json:"id"`
	OrganizerID     string    `json:"organizer_id"`
	Name            string    `json:"name"`
	Details         *string   `json:"details"`
	Location        *string   `json:"location"`
	SuggestedTime   *string   `json:"suggested_time"`
	DurationMinutes *int      `json:"duration_minutes"`
	SecretToken     string    `json:"secret_token"`
	CreatedAt       time.Time `json:"created_at"`
}

// EventDate is one candidate calendar day for an event, proposed either by
// the organizer at creation time or by an attendee later.
type EventDate struct {
	ID                   string    `json:"id"`
	EventID              string    `json:"event_id"`
	Date                 time.Time `json:"date"`
	SuggestedByOrganizer bool      `json:"suggested_by_organizer"`
	CreatedAt            time.Time `json:"created_at"`
}

// EventWithDates bundles an event with its candidate dates, ascending by
// timestamp.
type EventWithDates struct {
	Event
	Dates []EventDate `json:"dates"`
}

// AttendeeResponse is one attendee's submission for an event. A single
// response may score multiple dates.
type AttendeeResponse struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail *string   `json:"attendee_email"`
	CreatedAt     time.Time `json:"created_at"`
}

// DateAvailability links one attendee response to one candidate date with
// a score from 1 (cannot attend) to 5 (ideal).
type DateAvailability struct {
	ID                 string    `json:"id"`
	AttendeeResponseID string    `json:"attendee_response_id"`
	EventDateID        string    `json:"event_date_id"`
	Score              int       `json:"score"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	OrganizerID     string      `json:"organizer_id" validate:"required"`
	Name            string      `json:"name" validate:"required"`
	Details         *string     `json:"details"`
	Location        *string     `json:"location"`
	SuggestedTime   *string     `json:"suggested_time"`
	DurationMinutes *int        `json:"duration_minutes" validate:"omitempty,gt=0"`
	PreferredDates  []time.Time `json:"preferred_dates" validate:"required,min=1"`
}

// ScoredDate is one date/score pair inside an attendee submission.
type ScoredDate struct {
	Date  time.Time `json:"date" validate:"required"`
	Score int       `json:"score" validate:"min=1,max=5"`
}

// CreateResponseRequest is the payload for an attendee submission.
// NewDates lets a client persist a bare date suggestion even when the
// attendee has not scored it yet.
type CreateResponseRequest struct {
	AttendeeName       string       `json:"attendee_name" validate:"required"`
	AttendeeEmail      *string      `json:"attendee_email" validate:"omitempty,email"`
	DateAvailabilities []ScoredDate `json:"date_availabilities" validate:"dive"`
	NewDates           []time.Time  `json:"new_dates"`
}

// DateResponse is one attendee's score for a date in the aggregate view.
type DateResponse struct {
	AttendeeName string `json:"attendee_name"`
	Score        int    `json:"score"`
}

// DateAggregate is the per-date statistics block of the organizer
// dashboard. AverageScore is exactly 0 when ResponseCount is 0.
type DateAggregate struct {
	Date                 time.Time      `json:"date"`
	SuggestedByOrganizer bool           `json:"suggested_by_organizer"`
	Responses            []DateResponse `json:"responses"`
	AverageScore         float64        `json:"average_score"`
	ResponseCount        int            `json:"response_count"`
}

// EventAvailability is the full dashboard view for one event. Dates holds
// every candidate date of the event exactly once, including dates nobody
// has scored yet.
type EventAvailability struct {
	Event Event           `json:"event"`
	Dates []DateAggregate `json:"dates"`
}

// AvailabilityRow is one row of the date/score join used to build the
// aggregate view. AttendeeName and Score are nil for dates without any
// recorded availability.
type AvailabilityRow struct {
	DateID               string
	Date                 time.Time
	SuggestedByOrganizer bool
	AttendeeName         *string
	Score                *int
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
