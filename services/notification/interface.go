package notification

import "context"

// Message is one outbound email.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

// Relay is the outbound port to a mail relay. It returns the relay's delivery id.
type Relay interface {
	Send(ctx context.Context, msg Message) (string, error)
}
