package calendar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"demobook/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleProvider talks to the Google Calendar v3 API.
type GoogleProvider struct {
	events *gcal.EventsService
}

// NewGoogleService builds a Calendar client from a service account key. When
// impersonate is set the key must have domain-wide delegation for that user.
func NewGoogleService(ctx context.Context, credentialsFile, impersonate string) (*gcal.Service, error) {
	if credentialsFile == "" {
		return gcal.NewService(ctx, option.WithScopes(gcal.CalendarEventsScope))
	}
	if impersonate == "" {
		return gcal.NewService(ctx,
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(gcal.CalendarEventsScope))
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	conf.Subject = impersonate
	return gcal.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
}

func NewGoogleProvider(svc *gcal.Service) *GoogleProvider {
	return &GoogleProvider{events: svc.Events}
}

func (g *GoogleProvider) CreateEvent(ctx context.Context, calendarID string, spec EventSpec) (CreatedEvent, error) {
	ev := &gcal.Event{
		Id:          spec.ID,
		Summary:     spec.Title,
		Description: spec.Description,
		Location:    spec.Location,
		Status:      "confirmed",
		Start:       &gcal.EventDateTime{DateTime: spec.Start.Format(time.RFC3339), TimeZone: spec.TimeZone},
		End:         &gcal.EventDateTime{DateTime: spec.End.Format(time.RFC3339), TimeZone: spec.TimeZone},
	}

	created, err := g.events.Insert(calendarID, ev).Context(ctx).Do()
	if err == nil {
		return CreatedEvent{ID: created.Id, HTMLLink: created.HtmlLink}, nil
	}
	if googleCode(err) != http.StatusConflict {
		return CreatedEvent{}, classifyGoogleError(err, "insert event %s", spec.ID)
	}

	// The id is taken: a previous attempt already created this booking's event.
	existing, err := g.events.Get(calendarID, spec.ID).Context(ctx).Do()
	if err != nil {
		return CreatedEvent{}, classifyGoogleError(err, "get existing event %s", spec.ID)
	}
	if existing.Status == "cancelled" {
		existing, err = g.events.Update(calendarID, spec.ID, ev).Context(ctx).Do()
		if err != nil {
			return CreatedEvent{}, classifyGoogleError(err, "restore cancelled event %s", spec.ID)
		}
	}
	return CreatedEvent{ID: existing.Id, HTMLLink: existing.HtmlLink}, nil
}

func (g *GoogleProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if code := googleCode(err); code == http.StatusNotFound || code == http.StatusGone {
		return nil
	}
	return classifyGoogleError(err, "delete event %s", eventID)
}

func googleCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// rateLimited spots quota errors, which Google reports as 403.
func rateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// classifyGoogleError maps Calendar API failures onto the error taxonomy.
func classifyGoogleError(err error, format string, args ...any) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return models.WrapError(models.KindAuthExpired, err, format, args...)
	}

	if rateLimited(err) {
		return models.WrapError(models.KindProviderUnavailable, err, format, args...)
	}

	switch code := googleCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.WrapError(models.KindAuthExpired, err, format, args...)
	case code == http.StatusBadRequest:
		return models.WrapError(models.KindInvalidSchedule, err, format, args...)
	case code == http.StatusTooManyRequests || code >= 500:
		return models.WrapError(models.KindProviderUnavailable, err, format, args...)
	case code != 0:
		return models.WrapError(models.KindInvalidSchedule, err, format, args...)
	}

	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return models.WrapError(models.KindProviderUnavailable, err, format, args...)
	}
	if errors.Is(err, context.Canceled) {
		return models.WrapError(models.KindCanceled, err, format, args...)
	}
	return models.WrapError(models.KindProviderUnavailable, err, format, args...)
}
