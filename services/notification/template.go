package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"demobook/models"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #1f2933;">
    <h2>Your demo session is booked</h2>
    <p>Hi {{.Name}},</p>
    <p>Thanks for booking a demo with us. Here are the details:</p>
    <table cellpadding="6">
      <tr><td><strong>Date</strong></td><td>{{.Date}}</td></tr>
      <tr><td><strong>Time</strong></td><td>{{.Time}} ({{.TimeZone}})</td></tr>
      <tr><td><strong>Duration</strong></td><td>{{.Minutes}} minutes</td></tr>
      <tr><td><strong>Topic</strong></td><td>{{.Topic}}</td></tr>
      <tr><td><strong>Meeting link</strong></td><td><a href="{{.LinkURL}}">{{.LinkURL}}</a></td></tr>
    </table>
    <p>Meeting code: <code>{{.LinkCode}}</code></p>
    <p>See you there!</p>
  </body>
</html>
`))

type confirmationData struct {
	Name     string
	Date     string
	Time     string
	TimeZone string
	Minutes  int
	Topic    string
	LinkURL  string
	LinkCode string
}

// RenderConfirmation renders the subject and HTML body for b.
func RenderConfirmation(b *models.Booking, duration time.Duration) (string, string, error) {
	if b.MeetingLink == nil {
		return "", "", models.NewError(models.KindInvalidArgument, "booking %s has no meeting link", b.ID)
	}
	topic := b.Topic
	if topic == "" {
		topic = "Product demo"
	}
	data := confirmationData{
		Name:     b.Name,
		Date:     b.Date,
		Time:     b.Time,
		TimeZone: b.TimeZone,
		Minutes:  int(duration.Minutes()),
		Topic:    topic,
		LinkURL:  b.MeetingLink.URL,
		LinkCode: b.MeetingLink.Code,
	}

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render confirmation for %s: %w", b.ID, err)
	}
	subject := fmt.Sprintf("Your demo session on %s at %s is confirmed", b.Date, b.Time)
	return subject, buf.String(), nil
}
