package notification

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsoleRelay logs messages instead of delivering them.
type ConsoleRelay struct {
	logger *zap.Logger
}

func NewConsoleRelay(logger *zap.Logger) *ConsoleRelay {
	return &ConsoleRelay{logger: logger}
}

func (c *ConsoleRelay) Send(_ context.Context, msg Message) (string, error) {
	id := "console-" + uuid.NewString()
	c.logger.Info("[notify] email",
		zap.String("deliveryId", id),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("bodyBytes", len(msg.HTMLBody)))
	return id, nil
}
