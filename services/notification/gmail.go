package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/http"
	"os"

	"demobook/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailRelay sends mail through the Gmail API as the impersonated sender.
type GmailRelay struct {
	messages *gmail.UsersMessagesService
}

// NewGmailService builds a Gmail client that acts as sender. The service
// account behind credentialsFile needs domain-wide delegation for gmail.send.
func NewGmailService(ctx context.Context, credentialsFile, sender string) (*gmail.Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	conf.Subject = sender
	return gmail.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
}

func NewGmailRelay(svc *gmail.Service) *GmailRelay {
	return &GmailRelay{messages: svc.Users.Messages}
}

func (g *GmailRelay) Send(ctx context.Context, msg Message) (string, error) {
	raw, err := buildMIME(msg)
	if err != nil {
		return "", err
	}
	sent, err := g.messages.Send("me", &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}).Context(ctx).Do()
	if err != nil {
		return "", classifyGmailError(err, "send to %s", msg.To)
	}
	return sent.Id, nil
}

// buildMIME renders msg as an RFC 822 message with a quoted-printable HTML body.
func buildMIME(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTMLBody)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

func classifyGmailError(err error, format string, args ...any) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return models.WrapError(models.KindAuthExpired, err, format, args...)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return models.WrapError(models.KindAuthExpired, err, format, args...)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return models.WrapError(models.KindRelayUnavailable, err, format, args...)
		default:
			return models.WrapError(models.KindDeliveryRejected, err, format, args...)
		}
	}

	if errors.Is(err, context.Canceled) {
		return models.WrapError(models.KindCanceled, err, format, args...)
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return models.WrapError(models.KindRelayUnavailable, err, format, args...)
	}
	return models.WrapError(models.KindRelayUnavailable, err, format, args...)
}
