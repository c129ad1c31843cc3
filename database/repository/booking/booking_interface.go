package bookingRepo

import (
	"context"

	"demobook/models"
)

// BookingRepository is the durable owner of booking records, keyed by booking id.
//
// Conditional writes are the only concurrency control: CompareAndSwapStatus and
// Commit succeed only while the stored record satisfies the given precondition,
// and report models.ErrConflict (or false) otherwise.
type BookingRepository interface {
	// Create inserts b, failing with ErrConflict when the id already exists.
	Create(ctx context.Context, b *models.Booking) error
	// Put writes b unconditionally.
	Put(ctx context.Context, b *models.Booking) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Booking, error)
	// CompareAndSwapStatus moves an unleased booking from expected to next.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error)
	// Commit replaces the stored record with b when it satisfies cond.
	Commit(ctx context.Context, b *models.Booking, cond models.Precondition) error
	// ListByStatus returns up to limit bookings, least recently updated first.
	ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error)
}

// Pinger is implemented by repositories that can probe their backend cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}
