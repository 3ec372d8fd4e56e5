package notification

import (
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

const (
	KindDepositReceived  = "deposit_received"
	KindPurchaseComplete = "purchase_complete"
	KindPurchaseFailed   = "purchase_failed"
	KindTransferSent     = "transfer_sent"
)

// Message describes a notification payload. Delivery is always best-effort:
// callers log and ignore send failures.
type Message struct {
	UserID    string
	Kind      string
	Reference string
	Amount    int64
	Body      string
}

// Sender delivers notifications to downstream channels (email, SMS).
type Sender interface {
	Send(message Message) error
}

// LogSender writes notifications to the structured logger. It stands in for
// the real email/SMS delivery service.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(message Message) error {
	logger.Info("notification", logger.Fields{
		logger.UserIdKey:    message.UserID,
		logger.ReferenceKey: message.Reference,
		"kind":              message.Kind,
		"amount":            message.Amount,
		"body":              message.Body,
	})
	return nil
}
