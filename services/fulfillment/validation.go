package fulfillment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"demobook/models"

	"github.com/go-playground/validator/v10"
)

var bookingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("bookingid", func(fl validator.FieldLevel) bool {
		return bookingIDPattern.MatchString(fl.Field().String())
	})
	return v
}

type requestRules struct {
	BookingID string `validate:"omitempty,bookingid"`
	Name      string `validate:"required,max=200"`
	Email     string `validate:"required,email"`
	Date      string `validate:"required,datetime=2006-01-02"`
	Time      string `validate:"required,datetime=15:04"`
	Topic     string `validate:"max=200"`
}

// validateRequest normalises req and resolves its start instant in loc.
// Every failure is InvalidArgument and happens before any side effect.
func (s *DefaultFulfillmentService) validateRequest(req models.BookingRequest) (models.BookingRequest, time.Time, error) {
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Topic = strings.TrimSpace(req.Topic)

	rules := requestRules(req)
	if err := s.validate.Struct(rules); err != nil {
		return req, time.Time{}, models.WrapError(models.KindInvalidArgument, err, "%s", describeValidation(err))
	}

	startsAt, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, s.Policy.Location)
	if err != nil {
		return req, time.Time{}, models.WrapError(models.KindInvalidArgument, err, "date and time do not form a valid instant")
	}
	if !startsAt.After(s.now()) {
		return req, time.Time{}, models.NewError(models.KindInvalidArgument, "requested time %s %s is not in the future", req.Date, req.Time)
	}
	return req, startsAt, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid booking request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		case "email":
			parts = append(parts, "email is not a valid address")
		case "datetime":
			parts = append(parts, fmt.Sprintf("%s must match %s", strings.ToLower(fe.Field()), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field())))
		}
	}
	return strings.Join(parts, "; ")
}
