package notification

import (
	"context"
	"net/mail"
	"time"

	"demobook/models"

	"go.uber.org/zap"
)

// EmailNotifier sends the booking confirmation through a Relay.
type EmailNotifier struct {
	relay    Relay
	from     string
	operator string
	duration time.Duration
	logger   *zap.Logger
}

// NewEmailNotifier wires the notifier. operator may be empty to skip the copy.
func NewEmailNotifier(relay Relay, from, operator string, duration time.Duration, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		relay:    relay,
		from:     from,
		operator: operator,
		duration: duration,
		logger:   logger,
	}
}

// Notify renders the confirmation and dispatches it to the attendee, then to
// the operator when one is configured. Only the attendee delivery can fail the call.
func (n *EmailNotifier) Notify(ctx context.Context, b *models.Booking) error {
	if _, err := mail.ParseAddress(b.Email); err != nil {
		return models.WrapError(models.KindDeliveryRejected, err, "invalid attendee address %q", b.Email)
	}

	subject, body, err := RenderConfirmation(b, n.duration)
	if err != nil {
		return err
	}

	deliveryID, err := n.relay.Send(ctx, Message{From: n.from, To: b.Email, Subject: subject, HTMLBody: body})
	if err != nil {
		return err
	}
	n.logger.Info("confirmation sent",
		zap.String("bookingId", b.ID),
		zap.String("deliveryId", deliveryID))

	if n.operator != "" {
		copySubject := "[Booking " + b.ID + "] " + subject
		if _, err := n.relay.Send(ctx, Message{From: n.from, To: n.operator, Subject: copySubject, HTMLBody: body}); err != nil {
			n.logger.Warn("operator copy failed", zap.String("bookingId", b.ID), zap.Error(err))
		}
	}
	return nil
}
