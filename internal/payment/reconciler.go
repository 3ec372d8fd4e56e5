package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/notification"
	"github.com/billhaven/billhaven-backend/internal/wallet"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/events"
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

var (
	// ErrSignatureInvalid means the webhook payload failed HMAC verification.
	// The HTTP layer still acknowledges with 200 to stop gateway retry storms.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrRecordNotFound means no payment or virtual account matched the
	// notification. The worker retries before giving up: the record may not
	// exist yet due to a race with the initiating request.
	ErrRecordNotFound = errors.New("no matching record for notification")

	// ErrUnknownEvent marks event types this service does not process.
	ErrUnknownEvent = errors.New("unknown event type")
)

// Reconciler converts gateway notifications into exactly-once wallet credits.
// The only already-credited check is ledger entry existence; the Payment row
// status is written after the fact and never consulted for the decision.
type Reconciler struct {
	cfg      config.Config
	wallets  *wallet.Service
	repo     Repository
	paystack *PaystackClient
	notifier notification.Sender
}

func NewReconciler(cfg config.Config, wallets *wallet.Service, repo Repository, paystack *PaystackClient, notifier notification.Sender) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		wallets:  wallets,
		repo:     repo,
		paystack: paystack,
		notifier: notifier,
	}
}

// VerifySignature checks the gateway's HMAC-SHA512 over the exact raw payload
// bytes before any field is trusted.
func (r *Reconciler) VerifySignature(gateway, signature string, body []byte) bool {
	var secret string
	switch gateway {
	case GatewayPaystack:
		secret = r.cfg.PaystackSecret
	case GatewayMonnify:
		secret = r.cfg.MonnifySecret
	default:
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseEvent extracts the fields this service cares about from a verified
// gateway payload.
func (r *Reconciler) ParseEvent(gateway string, body []byte) (events.GatewayEvent, error) {
	switch gateway {
	case GatewayPaystack:
		var event struct {
			Event string `json:"event"`
			Data  struct {
				Reference string `json:"reference"`
				Status    string `json:"status"`
				Amount    int64  `json:"amount"`
				Channel   string `json:"channel"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &event); err != nil {
			return events.GatewayEvent{}, err
		}
		return events.GatewayEvent{
			Gateway:   GatewayPaystack,
			Event:     event.Event,
			Reference: event.Data.Reference,
			Status:    event.Data.Status,
			Amount:    event.Data.Amount,
			Timestamp: time.Now(),
		}, nil

	case GatewayMonnify:
		var event struct {
			EventType string `json:"eventType"`
			EventData struct {
				TransactionReference string  `json:"transactionReference"`
				PaymentReference     string  `json:"paymentReference"`
				AmountPaid           float64 `json:"amountPaid"`
				PaymentStatus        string  `json:"paymentStatus"`
				DestinationAccount   struct {
					AccountNumber string `json:"accountNumber"`
				} `json:"destinationAccountInformation"`
			} `json:"eventData"`
		}
		if err := json.Unmarshal(body, &event); err != nil {
			return events.GatewayEvent{}, err
		}
		reference := event.EventData.PaymentReference
		if reference == "" {
			reference = event.EventData.TransactionReference
		}
		return events.GatewayEvent{
			Gateway:   GatewayMonnify,
			Event:     event.EventType,
			Reference: reference,
			Status:    event.EventData.PaymentStatus,
			// Monnify reports naira; round so float artifacts never shave a kobo
			Amount:    int64(math.Round(event.EventData.AmountPaid * 100)),
			Account:   event.EventData.DestinationAccount.AccountNumber,
			Timestamp: time.Now(),
		}, nil
	}

	return events.GatewayEvent{}, fmt.Errorf("unknown gateway %s", gateway)
}

// Apply feeds one verified event into the wallet service. Safe to call any
// number of times for the same event.
func (r *Reconciler) Apply(event events.GatewayEvent) error {
	switch event.Event {
	case "charge.success":
		return r.applyCharge(event)
	case "charge.failed":
		return r.applyFailedCharge(event)
	case "SUCCESSFUL_TRANSACTION":
		if event.Account != "" {
			return r.applyVirtualAccountCredit(event)
		}
		return r.applyCharge(event)
	default:
		logger.Warn("Reconciler: unknown event type", logger.Fields{
			"event":             event.Event,
			logger.ReferenceKey: event.Reference,
		})
		return ErrUnknownEvent
	}
}

func (r *Reconciler) applyCharge(event events.GatewayEvent) error {
	p, err := r.repo.PaymentByReference(event.Reference)
	if err != nil {
		return fmt.Errorf("%w: payment %s", ErrRecordNotFound, event.Reference)
	}

	amount := event.Amount
	if amount <= 0 {
		amount = p.Amount
	}

	entry, err := r.wallets.Credit(p.UserID.String(), amount, ledger.EntryDeposit, p.Reference, event.Gateway)
	if err != nil {
		return fmt.Errorf("failed to credit wallet for %s: %w", p.Reference, err)
	}

	if err := r.repo.SetPaymentStatus(p.Reference, StatusSuccess, event.Reference, ""); err != nil {
		// the credit is committed; the status row is informational
		logger.Error("Reconciler: payment status update failed after credit", logger.Fields{
			logger.ReferenceKey: p.Reference,
			"error":             err.Error(),
		})
	}

	r.notify(notification.Message{
		UserID:    p.UserID.String(),
		Kind:      notification.KindDepositReceived,
		Reference: p.Reference,
		Amount:    entry.Amount,
		Body:      "Your wallet has been funded",
	})
	return nil
}

func (r *Reconciler) applyFailedCharge(event events.GatewayEvent) error {
	p, err := r.repo.PaymentByReference(event.Reference)
	if err != nil {
		return fmt.Errorf("%w: payment %s", ErrRecordNotFound, event.Reference)
	}

	// never downgrade a payment whose credit already landed
	if r.wallets.EntryExists(p.Reference) {
		return nil
	}
	return r.repo.SetPaymentStatus(p.Reference, StatusFailed, event.Reference, "")
}

func (r *Reconciler) applyVirtualAccountCredit(event events.GatewayEvent) error {
	va, err := r.repo.VirtualAccountByNumber(event.Account)
	if err != nil {
		return fmt.Errorf("%w: virtual account %s", ErrRecordNotFound, event.Account)
	}

	if event.Amount <= 0 {
		return fmt.Errorf("virtual account credit %s has no amount", event.Reference)
	}

	reference := "va-" + event.Reference
	entry, err := r.wallets.Credit(va.UserID.String(), event.Amount, ledger.EntryVirtualAccountCredit, reference, event.Account)
	if err != nil {
		return fmt.Errorf("failed to credit virtual account transfer %s: %w", reference, err)
	}

	r.notify(notification.Message{
		UserID:    va.UserID.String(),
		Kind:      notification.KindDepositReceived,
		Reference: reference,
		Amount:    entry.Amount,
		Body:      "Your wallet has been funded by bank transfer",
	})
	return nil
}

// VerifyAndApply is the manual verification path: it asks Paystack for the
// transaction's final state and converges on the same credit path as the
// webhook, so a race between the two settles on exactly one ledger entry.
func (r *Reconciler) VerifyAndApply(reference string) (Status, error) {
	p, err := r.repo.PaymentByReference(reference)
	if err != nil {
		return "", fmt.Errorf("%w: payment %s", ErrRecordNotFound, reference)
	}

	if r.wallets.EntryExists(p.Reference) {
		return StatusSuccess, nil
	}

	verify, err := r.paystack.VerifyTransaction(reference)
	if err != nil {
		return p.Status, err
	}

	switch verify.Status {
	case "success":
		err := r.Apply(events.GatewayEvent{
			Gateway:   p.Gateway,
			Event:     "charge.success",
			Reference: reference,
			Status:    verify.Status,
			Amount:    verify.Amount,
			Timestamp: time.Now(),
		})
		if err != nil {
			return p.Status, err
		}
		return StatusSuccess, nil
	case "failed":
		if err := r.repo.SetPaymentStatus(reference, StatusFailed, "", verify.Channel); err != nil {
			return p.Status, err
		}
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

func (r *Reconciler) notify(msg notification.Message) {
	if err := r.notifier.Send(msg); err != nil {
		logger.Warn("Notification send failed", logger.Fields{
			logger.ReferenceKey: msg.Reference,
			"error":             err.Error(),
		})
	}
}
