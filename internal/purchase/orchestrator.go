package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/billhaven/billhaven-backend/internal/idempotency"
	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/notification"
	"github.com/billhaven/billhaven-backend/internal/wallet"
	"github.com/billhaven/billhaven-backend/pkg/id"
	"github.com/billhaven/billhaven-backend/pkg/logger"
	"github.com/google/uuid"
)

var ErrUnsupportedProduct = errors.New("unsupported product")

// Orchestrator runs the debit -> provider call -> reconcile saga behind every
// spend flow. Money correctness rests on the wallet service; the orchestrator
// never holds a lock across the provider call.
type Orchestrator struct {
	wallets  *wallet.Service
	repo     Repository
	gateways map[Product]Gateway
	guard    *idempotency.Guard
	notifier notification.Sender
}

func NewOrchestrator(wallets *wallet.Service, repo Repository, gateways map[Product]Gateway, guard *idempotency.Guard, notifier notification.Sender) *Orchestrator {
	return &Orchestrator{
		wallets:  wallets,
		repo:     repo,
		gateways: gateways,
		guard:    guard,
		notifier: notifier,
	}
}

type PurchaseInput struct {
	UserID      string
	Product     Product
	ServiceID   string
	CustomerRef string
	Amount      int64
}

type PurchaseResult struct {
	Reference   string `json:"reference"`
	Status      Status `json:"status"`
	Refunded    bool   `json:"refunded"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Execute runs one purchase attempt end to end. An ambiguous provider
// outcome leaves the record processing for the reconciler; it is never
// refunded here.
func (o *Orchestrator) Execute(ctx context.Context, input PurchaseInput) (PurchaseResult, error) {
	if input.Amount <= 0 {
		return PurchaseResult{}, fmt.Errorf("amount must be positive")
	}
	gateway, ok := o.gateways[input.Product]
	if !ok {
		return PurchaseResult{}, ErrUnsupportedProduct
	}

	// advisory pre-check; the debit below is the real gate
	balance, err := o.wallets.BalanceOf(input.UserID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if balance < input.Amount {
		return PurchaseResult{}, &ledger.InsufficientFundsError{Required: input.Amount, Available: balance}
	}

	reference := fmt.Sprintf("%s-%s", referencePrefix(input.Product), id.Generate())
	rec := &Record{
		UserID:      uuid.MustParse(input.UserID),
		Reference:   reference,
		Product:     input.Product,
		ServiceID:   input.ServiceID,
		CustomerRef: input.CustomerRef,
		Amount:      input.Amount,
		Status:      StatusPending,
	}
	if err := o.repo.Create(rec); err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to create purchase record: %w", err)
	}

	claimed, err := o.guard.TryClaim(ctx, reference)
	if err != nil {
		logger.Warn("Idempotency claim failed, relying on ledger uniqueness", logger.Fields{
			logger.ReferenceKey: reference,
			"error":             err.Error(),
		})
	} else if !claimed {
		return PurchaseResult{Reference: reference, Status: StatusProcessing, Message: "already in progress"}, nil
	}

	if _, err := o.wallets.Debit(input.UserID, input.Amount, entryTypeFor(input.Product), reference, string(input.Product)); err != nil {
		o.guard.Release(ctx, reference)
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			o.repo.Fail(reference, "insufficient funds", false)
			return PurchaseResult{}, err
		}
		o.repo.Fail(reference, "debit failed", false)
		return PurchaseResult{}, fmt.Errorf("debit failed: %w", err)
	}

	if err := o.repo.MarkProcessing(reference); err != nil {
		logger.Error("Failed to mark purchase processing", logger.Fields{
			logger.ReferenceKey: reference,
			"error":             err.Error(),
		})
	}
	rec.Status = StatusProcessing

	res, err := gateway.Purchase(ProviderRequest{
		Reference:   reference,
		ServiceID:   input.ServiceID,
		CustomerRef: input.CustomerRef,
		Amount:      input.Amount,
	})
	if err != nil {
		// provider call errors are ambiguous unless the gateway said otherwise
		res = ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}
	}

	return o.resolve(ctx, rec, res)
}

// resolve applies a classified provider outcome to the record. It is shared
// by Execute and the reconciler so replays always converge on the same
// terminal state.
func (o *Orchestrator) resolve(ctx context.Context, rec *Record, res ProviderResult) (PurchaseResult, error) {
	switch res.Outcome {
	case OutcomeSuccess:
		return o.complete(ctx, rec, res)
	case OutcomeDeclined:
		return o.failAndRefund(ctx, rec, res)
	default:
		logger.Warn("Purchase outcome ambiguous, holding for reconciliation", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"message":           res.Message,
		})
		return PurchaseResult{
			Reference: rec.Reference,
			Status:    StatusProcessing,
			Message:   "purchase pending provider confirmation",
		}, nil
	}
}

func (o *Orchestrator) complete(ctx context.Context, rec *Record, res ProviderResult) (PurchaseResult, error) {
	if err := o.repo.Complete(rec.Reference, res.ProviderRef, res.Raw); err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to complete purchase record: %w", err)
	}
	o.guard.Complete(ctx, rec.Reference)

	// Delivery-detail fetch is enrichment: funds are settled, a failure here
	// never touches the financial state. The reconciler retries it later.
	o.enrich(rec, res.ProviderRef)

	o.notify(notification.Message{
		UserID:    rec.UserID.String(),
		Kind:      notification.KindPurchaseComplete,
		Reference: rec.Reference,
		Amount:    rec.Amount,
		Body:      fmt.Sprintf("Your %s purchase was successful", rec.Product),
	})

	return PurchaseResult{
		Reference:   rec.Reference,
		Status:      StatusCompleted,
		ProviderRef: res.ProviderRef,
	}, nil
}

func (o *Orchestrator) failAndRefund(ctx context.Context, rec *Record, res ProviderResult) (PurchaseResult, error) {
	refunded := true
	refundRef := "refund-" + rec.Reference
	if _, err := o.wallets.Credit(rec.UserID.String(), rec.Amount, ledger.EntryRefund, refundRef, res.Message); err != nil {
		logger.Error("CRITICAL: refund credit failed, user remains debited", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"error":             err.Error(),
		})
		refunded = false
	}

	if err := o.repo.Fail(rec.Reference, res.Message, refunded); err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to mark purchase failed: %w", err)
	}
	o.guard.Release(ctx, rec.Reference)

	o.notify(notification.Message{
		UserID:    rec.UserID.String(),
		Kind:      notification.KindPurchaseFailed,
		Reference: rec.Reference,
		Amount:    rec.Amount,
		Body:      fmt.Sprintf("Your %s purchase failed and your wallet was refunded", rec.Product),
	})

	return PurchaseResult{
		Reference: rec.Reference,
		Status:    StatusFailed,
		Refunded:  refunded,
		Message:   res.Message,
	}, nil
}

func (o *Orchestrator) enrich(rec *Record, providerRef string) {
	gateway, ok := o.gateways[rec.Product]
	if !ok {
		return
	}
	fetcher, ok := gateway.(DetailFetcher)
	if !ok {
		return
	}
	details, err := fetcher.FetchDetails(providerRef)
	if err != nil {
		logger.Warn("Detail fetch failed, will retry during reconciliation", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"error":             err.Error(),
		})
		return
	}
	if err := o.repo.SetCardDetails(rec.Reference, details); err != nil {
		logger.Error("Failed to store card details", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"error":             err.Error(),
		})
	}
}

func (o *Orchestrator) notify(msg notification.Message) {
	if err := o.notifier.Send(msg); err != nil {
		logger.Warn("Notification send failed", logger.Fields{
			logger.ReferenceKey: msg.Reference,
			"error":             err.Error(),
		})
	}
}

func entryTypeFor(product Product) ledger.EntryType {
	if product == ProductGiftCard {
		return ledger.EntryGiftCard
	}
	return ledger.EntryBillPayment
}

func referencePrefix(product Product) string {
	if product == ProductGiftCard {
		return "gift"
	}
	return "bill"
}
