package calendar

import (
	"context"
	"encoding/base32"
	"strings"
	"time"
)

// EventSpec is what the scheduler asks a provider to create.
type EventSpec struct {
	// ID is derived from the booking id and doubles as the idempotency key.
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// CreatedEvent is the provider's view of an event after creation.
type CreatedEvent struct {
	ID       string
	HTMLLink string
}

// Provider is the outbound port to an external calendar.
type Provider interface {
	// CreateEvent must return the existing event when spec.ID was already created.
	CreateEvent(ctx context.Context, calendarID string, spec EventSpec) (CreatedEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

var eventIDEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// EventIDFor renders a booking id in the alphabet Google accepts for
// client-chosen event ids (0-9, a-v).
func EventIDFor(bookingID string) string {
	return "demo" + strings.ToLower(eventIDEncoding.EncodeToString([]byte(bookingID)))
}
