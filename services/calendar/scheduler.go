package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"demobook/models"

	"go.uber.org/zap"
)

// DefaultDuration is the length of a demo session.
const DefaultDuration = 60 * time.Minute

// Scheduler registers demo sessions on one calendar.
type Scheduler struct {
	provider   Provider
	calendarID string
	duration   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewScheduler(provider Provider, calendarID string, duration time.Duration, logger *zap.Logger) *Scheduler {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Scheduler{
		provider:   provider,
		calendarID: calendarID,
		duration:   duration,
		now:        time.Now,
		logger:     logger,
	}
}

// Duration is the fixed session length used for every event.
func (s *Scheduler) Duration() time.Duration { return s.duration }

// Schedule creates the calendar event for b. Calling it twice for the same
// booking yields the same event.
func (s *Scheduler) Schedule(ctx context.Context, b *models.Booking, link models.MeetingLink) (models.CalendarEventRef, error) {
	if b.StartsAt.IsZero() {
		return models.CalendarEventRef{}, models.NewError(models.KindInvalidSchedule, "booking %s has no start time", b.ID)
	}
	if !b.StartsAt.After(s.now()) {
		return models.CalendarEventRef{}, models.NewError(models.KindInvalidSchedule, "session start %s is in the past", b.StartsAt.Format(time.RFC3339))
	}

	spec := s.eventSpec(b, link)
	created, err := s.provider.CreateEvent(ctx, s.calendarID, spec)
	if err != nil {
		return models.CalendarEventRef{}, err
	}

	s.logger.Info("calendar event registered",
		zap.String("bookingId", b.ID),
		zap.String("eventId", created.ID),
		zap.Time("start", spec.Start))

	return models.CalendarEventRef{
		CalendarID: s.calendarID,
		EventID:    created.ID,
		HTMLLink:   created.HTMLLink,
	}, nil
}

// Cancel removes a previously registered event.
func (s *Scheduler) Cancel(ctx context.Context, ref models.CalendarEventRef) error {
	calendarID := ref.CalendarID
	if calendarID == "" {
		calendarID = s.calendarID
	}
	return s.provider.DeleteEvent(ctx, calendarID, ref.EventID)
}

func (s *Scheduler) eventSpec(b *models.Booking, link models.MeetingLink) EventSpec {
	topic := b.Topic
	if topic == "" {
		topic = "Product demo"
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Demo session with %s <%s>\n", b.Name, b.Email)
	fmt.Fprintf(&desc, "Topic: %s\n", topic)
	fmt.Fprintf(&desc, "Join: %s\n", link.URL)
	fmt.Fprintf(&desc, "Booking: %s", b.ID)

	return EventSpec{
		ID:          EventIDFor(b.ID),
		Title:       "Demo session: " + topic,
		Description: desc.String(),
		Location:    link.URL,
		Start:       b.StartsAt,
		End:         b.StartsAt.Add(s.duration),
		TimeZone:    b.TimeZone,
	}
}
