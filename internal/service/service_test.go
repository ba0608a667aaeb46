package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/whenworks/whenworks/internal/model"
	"github.com/whenworks/whenworks/internal/repository"
	"github.com/whenworks/whenworks/internal/token"
)

// memData is shared in-memory state behind the fake stores. The fakes keep
// the same semantics as the pgx repositories, including calendar-day
// deduplication, so service behavior can be tested without a database.
type memData struct {
	seq       int
	events    []model.Event
	dates     map[string][]model.EventDate
	responses []model.AttendeeResponse
	scores    []model.DateAvailability
}

func newMemData() *memData {
	return &memData{dates: make(map[string][]model.EventDate)}
}

func (d *memData) nextID(prefix string) string {
	d.seq++
	return fmt.Sprintf("%s-%d", prefix, d.seq)
}

func (d *memData) findEvent(id string) *model.Event {
	for i := range d.events {
		if d.events[i].ID == id {
			return &d.events[i]
		}
	}
	return nil
}

// getOrCreateDate reuses the event's candidate date for the timestamp's
// calendar day, creating one only for a day new to the event.
func (d *memData) getOrCreateDate(eventID string, ts time.Time, byOrganizer bool) model.EventDate {
	key := model.DayKey(ts)
	for _, ed := range d.dates[eventID] {
		if model.DayKey(ed.Date) == key {
			return ed
		}
	}
	ed := model.EventDate{
		ID:                   d.nextID("date"),
		EventID:              eventID,
		Date:                 ts,
		SuggestedByOrganizer: byOrganizer,
		CreatedAt:            time.Now().UTC(),
	}
	d.dates[eventID] = append(d.dates[eventID], ed)
	return ed
}

func (d *memData) sortedDates(eventID string) []model.EventDate {
	dates := append([]model.EventDate{}, d.dates[eventID]...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Date.Before(dates[j].Date) })
	return dates
}

type memEvents struct{ d *memData }

func (m *memEvents) Create(ctx context.Context, req model.CreateEventRequest) (*model.EventWithDates, error) {
	tok, err := token.New()
	if err != nil {
		return nil, err
	}
	ev := model.Event{
		ID:              m.d.nextID("event"),
		OrganizerID:     req.OrganizerID,
		Name:            req.Name,
		Details:         req.Details,
		Location:        req.Location,
		SuggestedTime:   req.SuggestedTime,
		DurationMinutes: req.DurationMinutes,
		SecretToken:     tok,
		CreatedAt:       time.Now().UTC(),
	}
	m.d.events = append(m.d.events, ev)

	seen := make(map[string]bool)
	dates := []model.EventDate{}
	for _, ts := range req.PreferredDates {
		ed := m.d.getOrCreateDate(ev.ID, ts, true)
		if !seen[ed.ID] {
			seen[ed.ID] = true
			dates = append(dates, ed)
		}
	}
	return &model.EventWithDates{Event: ev, Dates: dates}, nil
}

func (m *memEvents) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if ev := m.d.findEvent(id); ev != nil {
		return ev, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memEvents) GetByToken(ctx context.Context, secretToken string) (*model.EventWithDates, error) {
	for i := range m.d.events {
		if m.d.events[i].SecretToken == secretToken {
			return &model.EventWithDates{
				Event: m.d.events[i],
				Dates: m.d.sortedDates(m.d.events[i].ID),
			}, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memEvents) ListByOrganizer(ctx context.Context, organizerID string) ([]model.EventWithDates, error) {
	out := []model.EventWithDates{}
	for i := range m.d.events {
		if m.d.events[i].OrganizerID == organizerID {
			out = append(out, model.EventWithDates{
				Event: m.d.events[i],
				Dates: m.d.sortedDates(m.d.events[i].ID),
			})
		}
	}
	return out, nil
}

type memResponses struct{ d *memData }

func (m *memResponses) Create(ctx context.Context, eventID string, req model.CreateResponseRequest) (*model.AttendeeResponse, error) {
	if m.d.findEvent(eventID) == nil {
		return nil, repository.ErrNotFound
	}
	resp := model.AttendeeResponse{
		ID:            m.d.nextID("response"),
		EventID:       eventID,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
		CreatedAt:     time.Now().UTC(),
	}
	for _, ts := range req.NewDates {
		m.d.getOrCreateDate(eventID, ts, false)
	}
	scored := make(map[string]bool)
	pending := []model.DateAvailability{}
	for _, sd := range req.DateAvailabilities {
		ed := m.d.getOrCreateDate(eventID, sd.Date, false)
		if scored[ed.ID] {
			return nil, repository.ErrDuplicateScore
		}
		scored[ed.ID] = true
		pending = append(pending, model.DateAvailability{
			ID:                 m.d.nextID("availability"),
			AttendeeResponseID: resp.ID,
			EventDateID:        ed.ID,
			Score:              sd.Score,
			CreatedAt:          time.Now().UTC(),
		})
	}
	m.d.responses = append(m.d.responses, resp)
	m.d.scores = append(m.d.scores, pending...)
	return &resp, nil
}

type memAvailability struct{ d *memData }

func (m *memAvailability) ListForEvent(ctx context.Context, eventID string) ([]model.AvailabilityRow, error) {
	rows := []model.AvailabilityRow{}
	for _, ed := range m.d.sortedDates(eventID) {
		matched := false
		for _, sc := range m.d.scores {
			if sc.EventDateID != ed.ID {
				continue
			}
			matched = true
			var name string
			for _, r := range m.d.responses {
				if r.ID == sc.AttendeeResponseID {
					name = r.AttendeeName
				}
			}
			score := sc.Score
			rows = append(rows, model.AvailabilityRow{
				DateID:               ed.ID,
				Date:                 ed.Date,
				SuggestedByOrganizer: ed.SuggestedByOrganizer,
				AttendeeName:         &name,
				Score:                &score,
			})
		}
		if !matched {
			rows = append(rows, model.AvailabilityRow{
				DateID:               ed.ID,
				Date:                 ed.Date,
				SuggestedByOrganizer: ed.SuggestedByOrganizer,
			})
		}
	}
	return rows, nil
}

func newTestService() (*SchedulerService, *memData) {
	d := newMemData()
	svc := NewSchedulerService(&memEvents{d: d}, &memResponses{d: d}, &memAvailability{d: d})
	return svc, d
}

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 12, 0, 0, 0, time.UTC)
}

func mustCreateEvent(t *testing.T, svc *SchedulerService, dates ...time.Time) *model.EventWithDates {
	t.Helper()
	ev, err := svc.CreateEvent(context.Background(), model.CreateEventRequest{
		OrganizerID:    "org-1",
		Name:           "Team offsite",
		PreferredDates: dates,
	})
	if err != nil {
		t.Fatalf("CreateEvent() returned an error: %v", err)
	}
	return ev
}

func TestCreateEventWithPreferredDates(t *testing.T) {
	svc, _ := newTestService()

	ev := mustCreateEvent(t, svc, day(2024, 1, 15), day(2024, 1, 16))

	if len(ev.Dates) != 2 {
		t.Fatalf("expected 2 candidate dates, got %d", len(ev.Dates))
	}
	for _, d := range ev.Dates {
		if !d.SuggestedByOrganizer {
			t.Errorf("date %s should be organizer-suggested", d.Date)
		}
	}
	if len(ev.SecretToken) != token.Length {
		t.Errorf("expected %d-character secret token, got %q", token.Length, ev.SecretToken)
	}
}

func TestCreateEventValidation(t *testing.T) {
	svc, d := newTestService()

	cases := []struct {
		name string
		req  model.CreateEventRequest
	}{
		{"empty name", model.CreateEventRequest{
			OrganizerID:    "org-1",
			Name:           "   ",
			PreferredDates: []time.Time{day(2024, 1, 15)},
		}},
		{"no preferred dates", model.CreateEventRequest{
			OrganizerID: "org-1",
			Name:        "Team offsite",
		}},
		{"missing organizer", model.CreateEventRequest{
			Name:           "Team offsite",
			PreferredDates: []time.Time{day(2024, 1, 15)},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEvent(context.Background(), tc.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
	if len(d.events) != 0 {
		t.Errorf("expected no events persisted after failed validation, got %d", len(d.events))
	}
}

func TestCreateEventCollapsesSameDayDuplicates(t *testing.T) {
	svc, _ := newTestService()

	morning := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	ev := mustCreateEvent(t, svc, morning, evening)

	if len(ev.Dates) != 1 {
		t.Fatalf("expected same-day duplicates to collapse to 1 date, got %d", len(ev.Dates))
	}
}

func TestCreateAttendeeResponseWithNewDate(t *testing.T) {
	svc, d := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15), day(2024, 1, 16))

	resp, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
		AttendeeName: "Alice",
		DateAvailabilities: []model.ScoredDate{
			{Date: day(2024, 1, 15), Score: 5},
			{Date: day(2024, 1, 20), Score: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateAttendeeResponse() returned an error: %v", err)
	}
	if resp.AttendeeName != "Alice" {
		t.Errorf("expected attendee name Alice, got %q", resp.AttendeeName)
	}

	got, err := svc.GetEventByToken(context.Background(), ev.SecretToken)
	if err != nil {
		t.Fatalf("GetEventByToken() returned an error: %v", err)
	}
	if len(got.Dates) != 3 {
		t.Fatalf("expected 3 candidate dates after response, got %d", len(got.Dates))
	}
	for _, ed := range got.Dates {
		if model.DayKey(ed.Date) == "2024-01-20" && ed.SuggestedByOrganizer {
			t.Error("attendee-introduced date should not be organizer-suggested")
		}
	}
	if len(d.scores) != 2 {
		t.Errorf("expected 2 availability rows, got %d", len(d.scores))
	}
}

func TestCreateAttendeeResponseEmptyName(t *testing.T) {
	svc, d := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15))

	_, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
		AttendeeName: "",
		DateAvailabilities: []model.ScoredDate{
			{Date: day(2024, 1, 15), Score: 3},
		},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(d.responses) != 0 || len(d.scores) != 0 {
		t.Errorf("expected no rows persisted, got %d responses and %d scores", len(d.responses), len(d.scores))
	}
}

func TestCreateAttendeeResponseUnknownToken(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateAttendeeResponse(context.Background(), "no-such-token", model.CreateResponseRequest{
		AttendeeName: "Alice",
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAttendeeResponseScoreOutOfRange(t *testing.T) {
	svc, _ := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15))

	for _, score := range []int{0, 6, -1} {
		_, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
			AttendeeName: "Alice",
			DateAvailabilities: []model.ScoredDate{
				{Date: day(2024, 1, 15), Score: score},
			},
		})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("score %d: expected ErrValidation, got %v", score, err)
		}
	}
}

func TestCreateAttendeeResponseSameDayScoredTwice(t *testing.T) {
	svc, d := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15))

	_, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
		AttendeeName: "Alice",
		DateAvailabilities: []model.ScoredDate{
			{Date: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), Score: 5},
			{Date: time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC), Score: 2},
		},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for same-day double score, got %v", err)
	}
	if len(d.responses) != 0 || len(d.scores) != 0 {
		t.Errorf("expected nothing persisted, got %d responses and %d scores", len(d.responses), len(d.scores))
	}
}

func TestNewDatesHintPersistsUnscoredDate(t *testing.T) {
	svc, _ := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15))

	_, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
		AttendeeName: "Bob",
		NewDates:     []time.Time{day(2024, 1, 22)},
	})
	if err != nil {
		t.Fatalf("CreateAttendeeResponse() returned an error: %v", err)
	}

	avail, err := svc.GetEventAvailability(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEventAvailability() returned an error: %v", err)
	}
	if len(avail.Dates) != 2 {
		t.Fatalf("expected 2 candidate dates, got %d", len(avail.Dates))
	}
	for _, agg := range avail.Dates {
		if agg.ResponseCount != 0 {
			t.Errorf("date %s: expected 0 responses, got %d", agg.Date, agg.ResponseCount)
		}
		if agg.AverageScore != 0 {
			t.Errorf("date %s: expected average 0 with no responses, got %v", agg.Date, agg.AverageScore)
		}
	}
}

func TestOrganizerFlagNeverDowngraded(t *testing.T) {
	svc, _ := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15))

	// Same calendar day, different time of day, explicitly hinted as new.
	_, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
		AttendeeName: "Alice",
		NewDates:     []time.Time{time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)},
		DateAvailabilities: []model.ScoredDate{
			{Date: time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC), Score: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateAttendeeResponse() returned an error: %v", err)
	}

	got, err := svc.GetEventByToken(context.Background(), ev.SecretToken)
	if err != nil {
		t.Fatalf("GetEventByToken() returned an error: %v", err)
	}
	if len(got.Dates) != 1 {
		t.Fatalf("expected the same-day submission to reuse the candidate date, got %d dates", len(got.Dates))
	}
	if !got.Dates[0].SuggestedByOrganizer {
		t.Error("organizer-suggested flag was downgraded by an attendee submission")
	}
	if got.Dates[0].ID != ev.Dates[0].ID {
		t.Errorf("expected candidate date id %s to be reused, got %s", ev.Dates[0].ID, got.Dates[0].ID)
	}
}

func TestGetEventAvailabilityAggregates(t *testing.T) {
	svc, _ := newTestService()
	ev := mustCreateEvent(t, svc, day(2024, 1, 15), day(2024, 1, 16))

	submissions := []struct {
		name  string
		score int
	}{
		{"Alice", 5},
		{"Bob", 3},
	}
	for _, sub := range submissions {
		_, err := svc.CreateAttendeeResponse(context.Background(), ev.SecretToken, model.CreateResponseRequest{
			AttendeeName: sub.name,
			DateAvailabilities: []model.ScoredDate{
				{Date: day(2024, 1, 15), Score: sub.score},
			},
		})
		if err != nil {
			t.Fatalf("CreateAttendeeResponse(%s) returned an error: %v", sub.name, err)
		}
	}

	avail, err := svc.GetEventAvailability(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEventAvailability() returned an error: %v", err)
	}
	if len(avail.Dates) != 2 {
		t.Fatalf("expected one aggregate entry per candidate date, got %d", len(avail.Dates))
	}

	var scored, unscored *model.DateAggregate
	for i := range avail.Dates {
		if model.DayKey(avail.Dates[i].Date) == "2024-01-15" {
			scored = &avail.Dates[i]
		} else {
			unscored = &avail.Dates[i]
		}
	}
	if scored == nil || unscored == nil {
		t.Fatal("expected aggregates for both candidate dates")
	}

	if scored.ResponseCount != 2 {
		t.Errorf("expected response count 2, got %d", scored.ResponseCount)
	}
	if scored.AverageScore != 4.0 {
		t.Errorf("expected average score 4.0, got %v", scored.AverageScore)
	}
	if len(scored.Responses) != 2 {
		t.Errorf("expected 2 response entries, got %d", len(scored.Responses))
	}

	if unscored.ResponseCount != 0 {
		t.Errorf("expected response count 0 for unscored date, got %d", unscored.ResponseCount)
	}
	if unscored.AverageScore != 0 {
		t.Errorf("expected average exactly 0 for unscored date, got %v", unscored.AverageScore)
	}
	if unscored.Responses == nil {
		t.Error("expected empty responses list, got nil")
	}
}

func TestGetEventAvailabilityUnknownEvent(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetEventAvailability(context.Background(), "no-such-event")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEventByTokenUnknown(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetEventByToken(context.Background(), "no-such-token")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEventsByOrganizer(t *testing.T) {
	svc, _ := newTestService()
	mustCreateEvent(t, svc, day(2024, 1, 16), day(2024, 1, 15))

	events, err := svc.GetEventsByOrganizer(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GetEventsByOrganizer() returned an error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	dates := events[0].Dates
	if len(dates) != 2 {
		t.Fatalf("expected 2 dates, got %d", len(dates))
	}
	if !dates[0].Date.Before(dates[1].Date) {
		t.Error("expected dates in ascending timestamp order")
	}
}

func TestGetEventsByOrganizerUnknownIsEmpty(t *testing.T) {
	svc, _ := newTestService()

	events, err := svc.GetEventsByOrganizer(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetEventsByOrganizer() returned an error: %v", err)
	}
	if events == nil {
		t.Fatal("expected empty list, got nil")
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestSameDayGetOrCreateIsIdempotent(t *testing.T) {
	d := newMemData()
	d.events = append(d.events, model.Event{ID: "event-x"})

	first := d.getOrCreateDate("event-x", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), true)
	second := d.getOrCreateDate("event-x", time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC), false)

	if first.ID != second.ID {
		t.Errorf("expected the same candidate date for two same-day timestamps, got %s and %s", first.ID, second.ID)
	}
	if !second.SuggestedByOrganizer {
		t.Error("organizer flag must not change on reuse")
	}
}
