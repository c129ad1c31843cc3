package fulfillment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bookingRepo "demobook/database/repository/booking"
	"demobook/models"
	"demobook/services/calendar"
	"demobook/services/meetlink"

	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

// mockCalendar keeps one event per booking id, like a provider honouring the id.
type mockCalendar struct {
	mu           sync.Mutex
	ScheduleFunc func(ctx context.Context, b *models.Booking, link models.MeetingLink) error
	calls        int
	events       map[string]models.MeetingLink
}

func newMockCalendar() *mockCalendar {
	return &mockCalendar{events: make(map[string]models.MeetingLink)}
}

func (m *mockCalendar) Schedule(ctx context.Context, b *models.Booking, link models.MeetingLink) (models.CalendarEventRef, error) {
	m.mu.Lock()
	m.calls++
	fn := m.ScheduleFunc
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, b, link); err != nil {
			return models.CalendarEventRef{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := calendar.EventIDFor(b.ID)
	if _, ok := m.events[id]; !ok {
		m.events[id] = link
	}
	return models.CalendarEventRef{CalendarID: "primary", EventID: id}, nil
}

func (m *mockCalendar) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockCalendar) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockNotifier struct {
	mu         sync.Mutex
	NotifyFunc func(ctx context.Context, b *models.Booking) error
	sent       []*models.Booking
	calls      int
}

func (m *mockNotifier) Notify(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.NotifyFunc != nil {
		if err := m.NotifyFunc(ctx, b); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, b.Clone())
	return nil
}

func (m *mockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockNotifier) Sent() []*models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Booking(nil), m.sent...)
}

type resumeCall struct {
	BookingID string
	Delay     time.Duration
}

type mockResumer struct {
	mu    sync.Mutex
	calls []resumeCall
}

func (m *mockResumer) ScheduleResume(_ context.Context, bookingID string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, resumeCall{bookingID, delay})
	return nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []models.BookingOutcome
}

func (m *mockPublisher) Publish(_ context.Context, out models.BookingOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, out)
	return nil
}

func (m *mockPublisher) Statuses() []models.BookingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.BookingStatus, 0, len(m.published))
	for _, p := range m.published {
		out = append(out, p.Status)
	}
	return out
}

type harness struct {
	svc      *DefaultFulfillmentService
	store    *bookingRepo.MemoryBookingRepo
	cal      *mockCalendar
	notifier *mockNotifier
	resumer  *mockResumer
	events   *mockPublisher

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    bookingRepo.NewMemoryBookingRepo().WithClock(func() time.Time { return fixedNow }),
		cal:      newMockCalendar(),
		notifier: &mockNotifier{},
		resumer:  &mockResumer{},
		events:   &mockPublisher{},
	}
	h.svc = NewFulfillmentService(
		meetlink.NewGenerator(""),
		h.cal,
		h.store,
		h.notifier,
		h.resumer,
		h.events,
		DefaultPolicy(),
		zap.NewNop(),
	)
	h.svc.now = func() time.Time { return fixedNow }
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	var seq atomic.Int64
	h.svc.newID = func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }
	return h
}

func (h *harness) Sleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func janeDoe() models.BookingRequest {
	return models.BookingRequest{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Date:  "2025-08-20",
		Time:  "18:00",
		Topic: "Intro to Data Analysis",
	}
}
