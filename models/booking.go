package models

import "time"

// BookingStatus is the fulfillment state of a booking, persisted as a plain string.
type BookingStatus string

const (
	StatusPending            BookingStatus = "Pending"
	StatusLinkCreated        BookingStatus = "LinkCreated"
	StatusScheduled          BookingStatus = "Scheduled"
	StatusPersisted          BookingStatus = "Persisted"
	StatusNotified           BookingStatus = "Notified"
	StatusPartiallyFulfilled BookingStatus = "PartiallyFulfilled"
	StatusFailed             BookingStatus = "Failed"
)

// Stage is one side-effecting step of the fulfillment pipeline.
type Stage string

const (
	StageLink     Stage = "link"
	StageSchedule Stage = "schedule"
	StagePersist  Stage = "persist"
	StageNotify   Stage = "notify"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{StageLink, StageSchedule, StagePersist, StageNotify}

// mainChain ranks the statuses a booking walks through when every stage succeeds.
var mainChain = map[BookingStatus]int{
	StatusPending:     0,
	StatusLinkCreated: 1,
	StatusScheduled:   2,
	StatusPersisted:   3,
	StatusNotified:    4,
}

// StatusAfter returns the status a booking reaches once stage succeeds.
func StatusAfter(stage Stage) BookingStatus {
	switch stage {
	case StageLink:
		return StatusLinkCreated
	case StageSchedule:
		return StatusScheduled
	case StagePersist:
		return StatusPersisted
	case StageNotify:
		return StatusNotified
	}
	return StatusPending
}

// Rank orders main-chain statuses. Off-chain statuses rank -1.
func (s BookingStatus) Rank() int {
	if r, ok := mainChain[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	return s.Rank() >= 0 || s == StatusPartiallyFulfilled || s == StatusFailed
}

// Terminal reports whether no further pipeline run may change the booking.
func (s BookingStatus) Terminal() bool {
	return s == StatusNotified || s == StatusFailed
}

// Covers reports whether a booking whose progress is s has already completed stage.
func (s BookingStatus) Covers(stage Stage) bool {
	return s.Rank() >= StatusAfter(stage).Rank()
}

// CanTransition encodes the lifecycle: main-chain statuses only move forward,
// any non-terminal status may drop to PartiallyFulfilled or Failed, and a
// PartiallyFulfilled booking resumes past the progress it already recorded.
func CanTransition(from, to BookingStatus, progress BookingStatus) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch to {
	case StatusPartiallyFulfilled:
		return true
	case StatusFailed:
		return true
	}
	if from == StatusPartiallyFulfilled {
		return to.Rank() > progress.Rank()
	}
	return from.Rank() >= 0 && to.Rank() > from.Rank()
}

// MeetingLink is the generated meeting room identifier and its joinable URL.
type MeetingLink struct {
	Code string `bson:"code" json:"code" firestore:"code"`
	URL  string `bson:"url" json:"url" firestore:"url"`
}

// CalendarEventRef points at the event registered for a booking.
type CalendarEventRef struct {
	CalendarID string `bson:"calendar_id" json:"calendarId" firestore:"calendarId"`
	EventID    string `bson:"event_id" json:"eventId" firestore:"eventId"`
	HTMLLink   string `bson:"html_link,omitempty" json:"htmlLink,omitempty" firestore:"htmlLink,omitempty"`
}

// BookingRequest is the inbound demo session request.
type BookingRequest struct {
	BookingID string `json:"bookingId,omitempty"`
	Name      string `json:"name" binding:"required" validate:"required,max=200"`
	Email     string `json:"email" binding:"required,email" validate:"required,email"`
	Date      string `json:"date" binding:"required" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" binding:"required" validate:"required,datetime=15:04"`
	Topic     string `json:"topic" validate:"max=200"`
}

// Booking is the durable record of one demo session and its fulfillment progress.
type Booking struct {
	ID       string    `bson:"id" json:"id" firestore:"id" gorm:"primaryKey;type:text"`
	Name     string    `bson:"name" json:"name" firestore:"name"`
	Email    string    `bson:"email" json:"email" firestore:"email"`
	Date     string    `bson:"date" json:"date" firestore:"date"` // YYYY-MM-DD
	Time     string    `bson:"time" json:"time" firestore:"time"` // HH:MM
	Topic    string    `bson:"topic" json:"topic" firestore:"topic"`
	TimeZone string    `bson:"time_zone" json:"timeZone" firestore:"timeZone"`
	StartsAt time.Time `bson:"starts_at" json:"startsAt" firestore:"startsAt"`

	MeetingLink   *MeetingLink      `bson:"meeting_link,omitempty" json:"meetingLink,omitempty" firestore:"meetingLink,omitempty" gorm:"serializer:json"`
	CalendarEvent *CalendarEventRef `bson:"calendar_event,omitempty" json:"calendarEvent,omitempty" firestore:"calendarEvent,omitempty" gorm:"serializer:json"`

	Status    BookingStatus    `bson:"status" json:"status" firestore:"status" gorm:"index;type:text"`
	Progress  BookingStatus    `bson:"progress" json:"progress" firestore:"progress" gorm:"type:text"`
	Notes     map[Stage]string `bson:"notes,omitempty" json:"notes,omitempty" firestore:"notes,omitempty" gorm:"serializer:json"`
	LastError ErrorKind        `bson:"last_error,omitempty" json:"lastError,omitempty" firestore:"lastError,omitempty" gorm:"type:text"`

	// Run lease. Only the run holding RunID may advance the booking until LeaseExpiresAt.
	RunID          string    `bson:"run_id" json:"-" firestore:"runId"`
	LeaseExpiresAt time.Time `bson:"lease_expires_at" json:"-" firestore:"leaseExpiresAt"`
	Runs           int       `bson:"runs" json:"runs" firestore:"runs"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt" firestore:"updatedAt"`
}

// TableName keeps the relational layout aligned with the document collections.
func (Booking) TableName() string { return "bookings" }

// Precondition guards a conditional write on a stored booking.
type Precondition struct {
	Status BookingStatus
	RunID  string
}

// Satisfies reports whether the stored booking b may be overwritten under cond.
// The status must match and the lease must be free, expired or held by cond.RunID.
func (b *Booking) Satisfies(cond Precondition, now time.Time) bool {
	if b.Status != cond.Status {
		return false
	}
	return b.RunID == "" || b.RunID == cond.RunID || !b.LeaseExpiresAt.After(now)
}

// SetNote records the failure note for stage.
func (b *Booking) SetNote(stage Stage, note string) {
	if b.Notes == nil {
		b.Notes = make(map[Stage]string)
	}
	b.Notes[stage] = note
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	c := *b
	if b.MeetingLink != nil {
		l := *b.MeetingLink
		c.MeetingLink = &l
	}
	if b.CalendarEvent != nil {
		e := *b.CalendarEvent
		c.CalendarEvent = &e
	}
	if b.Notes != nil {
		c.Notes = make(map[Stage]string, len(b.Notes))
		for k, v := range b.Notes {
			c.Notes[k] = v
		}
	}
	return &c
}

// OutcomeError describes why a run stopped short of Notified.
type OutcomeError struct {
	Kind   ErrorKind `json:"kind"`
	Stage  Stage     `json:"stage,omitempty"`
	Detail string    `json:"detail"`
}

// BookingOutcome is what submitBooking returns to the caller.
type BookingOutcome struct {
	BookingID   string           `json:"bookingId"`
	Status      BookingStatus    `json:"status"`
	Progress    BookingStatus    `json:"progress,omitempty"`
	MeetingLink *MeetingLink     `json:"meetingLink,omitempty"`
	Notes       map[Stage]string `json:"notes,omitempty"`
	Error       *OutcomeError    `json:"error,omitempty"`
}

// OutcomeOf summarises the stored state of b.
func OutcomeOf(b *Booking) BookingOutcome {
	out := BookingOutcome{
		BookingID: b.ID,
		Status:    b.Status,
		Progress:  b.Progress,
		Notes:     b.Notes,
	}
	if b.MeetingLink != nil {
		l := *b.MeetingLink
		out.MeetingLink = &l
	}
	return out
}
