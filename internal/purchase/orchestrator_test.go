package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/billhaven/billhaven-backend/internal/idempotency"
	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/notification"
	"github.com/billhaven/billhaven-backend/internal/wallet"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway scripts provider behavior per call.
type fakeGateway struct {
	purchaseResult ProviderResult
	purchaseErr    error
	queryResult    ProviderResult
	queryErr       error
	purchaseCalls  int
	queryCalls     int

	details    string
	detailsErr error
}

func (g *fakeGateway) Purchase(req ProviderRequest) (ProviderResult, error) {
	g.purchaseCalls++
	return g.purchaseResult, g.purchaseErr
}

func (g *fakeGateway) Query(reference string) (ProviderResult, error) {
	g.queryCalls++
	return g.queryResult, g.queryErr
}

func (g *fakeGateway) FetchDetails(providerRef string) (string, error) {
	return g.details, g.detailsErr
}

type fixture struct {
	orchestrator *Orchestrator
	wallets      *wallet.Service
	repo         Repository
	gateway      *fakeGateway
	guard        *idempotency.Guard
	userID       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	guard := idempotency.NewGuard(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	wallets := wallet.NewService(ledger.NewMemoryStore())
	repo := NewMemoryRepository()
	gateway := &fakeGateway{}
	gateways := map[Product]Gateway{
		ProductAirtime:  gateway,
		ProductGiftCard: gateway,
	}

	userID := uuid.NewString()
	_, err := wallets.Credit(userID, 10000, ledger.EntryDeposit, "seed", "")
	require.NoError(t, err)

	return &fixture{
		orchestrator: NewOrchestrator(wallets, repo, gateways, guard, notification.NewLogSender()),
		wallets:      wallets,
		repo:         repo,
		gateway:      gateway,
		guard:        guard,
		userID:       userID,
	}
}

func (f *fixture) execute(t *testing.T, amount int64) PurchaseResult {
	t.Helper()
	result, err := f.orchestrator.Execute(context.Background(), PurchaseInput{
		UserID:      f.userID,
		Product:     ProductAirtime,
		ServiceID:   "mtn",
		CustomerRef: "08031234567",
		Amount:      amount,
	})
	require.NoError(t, err)
	return result
}

func TestPurchaseSuccess(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeSuccess, ProviderRef: "vt-1"}

	result := f.execute(t, 3000)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "vt-1", result.ProviderRef)
	assert.False(t, result.Refunded)

	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(7000), balance)

	rec, err := f.repo.ByReference(result.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, f.wallets.EntryExists(result.Reference))
}

func TestPurchaseDeclinedRefundsExactly(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeDeclined, Message: "invalid customer"}

	result := f.execute(t, 3000)
	assert.Equal(t, StatusFailed, result.Status)
	assert.True(t, result.Refunded)

	// refund conservation: balance restored to the kobo
	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(10000), balance)

	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.True(t, rec.Refunded)
	assert.Equal(t, "invalid customer", rec.FailReason)

	assert.True(t, f.wallets.EntryExists("refund-"+result.Reference))
}

func TestPurchaseAmbiguousHoldsWithoutRefund(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "timeout"}

	result := f.execute(t, 3000)
	assert.Equal(t, StatusProcessing, result.Status)
	assert.False(t, result.Refunded)

	// money stays debited until the reconciler gets a definitive answer
	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(7000), balance)

	assert.False(t, f.wallets.EntryExists("refund-"+result.Reference))
}

func TestPurchaseProviderErrorTreatedAsAmbiguous(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseErr = errors.New("connection reset")

	result := f.execute(t, 3000)
	assert.Equal(t, StatusProcessing, result.Status)

	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(7000), balance)
}

func TestPurchaseInsufficientFundsSkipsProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.Execute(context.Background(), PurchaseInput{
		UserID:      f.userID,
		Product:     ProductAirtime,
		ServiceID:   "mtn",
		CustomerRef: "08031234567",
		Amount:      20000,
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, 0, f.gateway.purchaseCalls, "provider must not be called")

	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(10000), balance)
}

func TestPurchaseUnsupportedProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator.Execute(context.Background(), PurchaseInput{
		UserID:      f.userID,
		Product:     Product("CRYPTO"),
		ServiceID:   "btc",
		CustomerRef: "x",
		Amount:      1000,
	})
	assert.ErrorIs(t, err, ErrUnsupportedProduct)
}

func TestGiftCardEnrichment(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeSuccess, ProviderRef: "rl-9"}
	f.gateway.details = `[{"cardNumber":"1234","pinCode":"5678"}]`

	result, err := f.orchestrator.Execute(context.Background(), PurchaseInput{
		UserID:      f.userID,
		Product:     ProductGiftCard,
		ServiceID:   "42",
		CustomerRef: "user@example.com",
		Amount:      5000,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, f.gateway.details, rec.CardDetails)
}

func TestEnrichmentFailureDoesNotAffectPurchase(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeSuccess, ProviderRef: "rl-9"}
	f.gateway.detailsErr = errors.New("cards not ready")

	result, err := f.orchestrator.Execute(context.Background(), PurchaseInput{
		UserID:      f.userID,
		Product:     ProductGiftCard,
		ServiceID:   "42",
		CustomerRef: "user@example.com",
		Amount:      5000,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Empty(t, rec.CardDetails)

	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(5000), balance)
}

func TestReconcilerResolvesAmbiguousToSuccess(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "timeout"}

	result := f.execute(t, 3000)
	require.Equal(t, StatusProcessing, result.Status)

	f.gateway.queryResult = ProviderResult{Outcome: OutcomeSuccess, ProviderRef: "vt-7"}

	reconciler := NewReconciler(f.orchestrator, f.repo)
	reconciler.minAge = -time.Hour // make every processing record eligible
	reconciler.RunOnce(context.Background())

	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "vt-7", rec.ProviderRef)

	// no refund: the provider did deliver
	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(7000), balance)
}

func TestReconcilerResolvesAmbiguousToDecline(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "timeout"}

	result := f.execute(t, 3000)
	require.Equal(t, StatusProcessing, result.Status)

	f.gateway.queryResult = ProviderResult{Outcome: OutcomeDeclined, Message: "transaction failed"}

	reconciler := NewReconciler(f.orchestrator, f.repo)
	reconciler.minAge = -time.Hour
	reconciler.RunOnce(context.Background())

	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.True(t, rec.Refunded)

	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(10000), balance)
}

func TestReconcilerSkipsOverlappingRequery(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "timeout"}

	result := f.execute(t, 3000)
	require.Equal(t, StatusProcessing, result.Status)

	// another pass still holds the requery claim for this reference
	claimed, err := f.guard.TryClaim(context.Background(), "requery-"+result.Reference)
	require.NoError(t, err)
	require.True(t, claimed)

	f.gateway.queryResult = ProviderResult{Outcome: OutcomeSuccess, ProviderRef: "vt-7"}

	reconciler := NewReconciler(f.orchestrator, f.repo)
	reconciler.minAge = -time.Hour
	reconciler.RunOnce(context.Background())

	assert.Equal(t, 0, f.gateway.queryCalls, "provider must not be queried twice for one reference")
	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusProcessing, rec.Status)

	// once the claim is gone the next pass resolves it
	require.NoError(t, f.guard.Release(context.Background(), "requery-"+result.Reference))
	reconciler.RunOnce(context.Background())

	assert.Equal(t, 1, f.gateway.queryCalls)
	rec, _ = f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestReconcilerSkipsCompletedReference(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "timeout"}

	result := f.execute(t, 3000)

	// resolved elsewhere between the batch listing and this pass
	require.NoError(t, f.guard.Complete(context.Background(), result.Reference))

	f.gateway.queryResult = ProviderResult{Outcome: OutcomeDeclined, Message: "transaction failed"}

	reconciler := NewReconciler(f.orchestrator, f.repo)
	reconciler.minAge = -time.Hour
	reconciler.RunOnce(context.Background())

	assert.Equal(t, 0, f.gateway.queryCalls)
	assert.False(t, f.wallets.EntryExists("refund-"+result.Reference))
}

func TestReconcilerLeavesStillAmbiguousAlone(t *testing.T) {
	f := newFixture(t)
	f.gateway.purchaseResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "timeout"}

	result := f.execute(t, 3000)

	f.gateway.queryResult = ProviderResult{Outcome: OutcomeAmbiguous, Message: "still processing"}

	reconciler := NewReconciler(f.orchestrator, f.repo)
	reconciler.minAge = -time.Hour
	reconciler.RunOnce(context.Background())

	rec, _ := f.repo.ByReference(result.Reference)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.False(t, rec.Refunded)

	balance, _ := f.wallets.BalanceOf(f.userID)
	assert.Equal(t, int64(7000), balance)
}
