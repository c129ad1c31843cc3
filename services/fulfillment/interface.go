package fulfillment

import (
	"context"
	"time"

	"demobook/models"
)

// FulfillmentService turns booking requests into fulfilled demo sessions.
type FulfillmentService interface {
	Submit(ctx context.Context, req models.BookingRequest) (models.BookingOutcome, error)
	Fulfill(ctx context.Context, bookingID string) (models.BookingOutcome, error)
	Abandon(ctx context.Context, bookingID string) (models.BookingOutcome, error)
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
	List(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error)
}

// LinkGenerator produces the meeting link of a booking.
type LinkGenerator interface {
	Generate(bookingID string) (models.MeetingLink, error)
}

// CalendarScheduler registers the session on the calendar, keyed by booking id.
type CalendarScheduler interface {
	Schedule(ctx context.Context, b *models.Booking, link models.MeetingLink) (models.CalendarEventRef, error)
}

// Notifier sends the confirmation for a persisted booking.
type Notifier interface {
	Notify(ctx context.Context, b *models.Booking) error
}

// BookingStore is the part of the booking repository the pipeline relies on.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (*models.Booking, error)
	CompareAndSwapStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error)
	Commit(ctx context.Context, b *models.Booking, cond models.Precondition) error
	ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error)
}

// Resumer schedules a later Fulfill run for a partially fulfilled booking.
type Resumer interface {
	ScheduleResume(ctx context.Context, bookingID string, delay time.Duration) error
}

// EventPublisher announces terminal outcomes of pipeline runs.
type EventPublisher interface {
	Publish(ctx context.Context, outcome models.BookingOutcome) error
}
