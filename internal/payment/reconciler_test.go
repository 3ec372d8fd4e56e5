package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/notification"
	"github.com/billhaven/billhaven-backend/internal/wallet"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPaystackSecret = "sk_test_secret"

func newTestReconciler(t *testing.T) (*Reconciler, *wallet.Service, Repository) {
	t.Helper()
	cfg := config.Config{
		PaystackSecret: testPaystackSecret,
		MonnifySecret:  "mfy_test_secret",
	}
	wallets := wallet.NewService(ledger.NewMemoryStore())
	repo := NewMemoryRepository()
	reconciler := NewReconciler(cfg, wallets, repo, nil, notification.NewLogSender())
	return reconciler, wallets, repo
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	body := []byte(`{"event":"charge.success"}`)

	assert.True(t, reconciler.VerifySignature(GatewayPaystack, sign(testPaystackSecret, body), body))
	assert.False(t, reconciler.VerifySignature(GatewayPaystack, sign("wrong_secret", body), body))
	assert.False(t, reconciler.VerifySignature(GatewayPaystack, "garbage", body))
	assert.False(t, reconciler.VerifySignature("unknown-gateway", sign(testPaystackSecret, body), body))

	// signature is over exact bytes: any mutation invalidates it
	tampered := []byte(`{"event":"charge.success" }`)
	assert.False(t, reconciler.VerifySignature(GatewayPaystack, sign(testPaystackSecret, body), tampered))
}

func TestParseEventPaystack(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	body := []byte(`{"event":"charge.success","data":{"reference":"dep-1","status":"success","amount":50000,"channel":"card"}}`)

	event, err := reconciler.ParseEvent(GatewayPaystack, body)
	require.NoError(t, err)
	assert.Equal(t, "charge.success", event.Event)
	assert.Equal(t, "dep-1", event.Reference)
	assert.Equal(t, int64(50000), event.Amount)
}

func TestParseEventMonnify(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|1","paymentReference":"","amountPaid":500.00,"paymentStatus":"PAID","destinationAccountInformation":{"accountNumber":"0123456789"}}}`)

	event, err := reconciler.ParseEvent(GatewayMonnify, body)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESSFUL_TRANSACTION", event.Event)
	assert.Equal(t, "MNFY|1", event.Reference)
	assert.Equal(t, int64(50000), event.Amount, "naira converted to kobo")
	assert.Equal(t, "0123456789", event.Account)
}

func TestParseEventMonnifyRoundsKobo(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	// 10000.05 * 100 is 1000004.9999... in float64; truncation would lose a kobo
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|2","amountPaid":10000.05,"paymentStatus":"PAID"}}`)

	event, err := reconciler.ParseEvent(GatewayMonnify, body)
	require.NoError(t, err)
	assert.Equal(t, int64(1000005), event.Amount)
}

func TestApplyChargeCreditsOnce(t *testing.T) {
	reconciler, wallets, repo := newTestReconciler(t)
	userID := uuid.New()

	require.NoError(t, repo.CreatePayment(&Payment{
		UserID:    userID,
		Reference: "dep-1",
		Gateway:   GatewayPaystack,
		Amount:    50000,
		Status:    StatusPending,
	}))

	event := events.GatewayEvent{
		Gateway:   GatewayPaystack,
		Event:     "charge.success",
		Reference: "dep-1",
		Amount:    50000,
		Timestamp: time.Now(),
	}

	require.NoError(t, reconciler.Apply(event))
	// duplicate delivery acknowledges without a second credit
	require.NoError(t, reconciler.Apply(event))

	balance, _ := wallets.BalanceOf(userID.String())
	assert.Equal(t, int64(50000), balance)

	p, _ := repo.PaymentByReference("dep-1")
	assert.Equal(t, StatusSuccess, p.Status)
}

func TestApplyChargeConcurrentDuplicates(t *testing.T) {
	reconciler, wallets, repo := newTestReconciler(t)
	userID := uuid.New()

	require.NoError(t, repo.CreatePayment(&Payment{
		UserID:    userID,
		Reference: "dep-1",
		Gateway:   GatewayPaystack,
		Amount:    50000,
		Status:    StatusPending,
	}))

	event := events.GatewayEvent{
		Gateway:   GatewayPaystack,
		Event:     "charge.success",
		Reference: "dep-1",
		Amount:    50000,
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reconciler.Apply(event))
		}()
	}
	wg.Wait()

	balance, _ := wallets.BalanceOf(userID.String())
	assert.Equal(t, int64(50000), balance, "exactly one credit despite concurrent deliveries")

	count, _ := wallets.Store().CountEntries(userID.String())
	assert.Equal(t, int64(1), count)
}

func TestApplyChargeUnknownPaymentSoftFails(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)

	err := reconciler.Apply(events.GatewayEvent{
		Gateway:   GatewayPaystack,
		Event:     "charge.success",
		Reference: "never-created",
		Amount:    1000,
	})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestApplyFailedChargeDoesNotDowngradeCredited(t *testing.T) {
	reconciler, wallets, repo := newTestReconciler(t)
	userID := uuid.New()

	require.NoError(t, repo.CreatePayment(&Payment{
		UserID:    userID,
		Reference: "dep-1",
		Gateway:   GatewayPaystack,
		Amount:    50000,
		Status:    StatusPending,
	}))

	success := events.GatewayEvent{Gateway: GatewayPaystack, Event: "charge.success", Reference: "dep-1", Amount: 50000}
	require.NoError(t, reconciler.Apply(success))

	// an out-of-order failed event must not flip the settled payment
	failed := events.GatewayEvent{Gateway: GatewayPaystack, Event: "charge.failed", Reference: "dep-1"}
	require.NoError(t, reconciler.Apply(failed))

	p, _ := repo.PaymentByReference("dep-1")
	assert.Equal(t, StatusSuccess, p.Status)

	balance, _ := wallets.BalanceOf(userID.String())
	assert.Equal(t, int64(50000), balance)
}

func TestApplyVirtualAccountCredit(t *testing.T) {
	reconciler, wallets, repo := newTestReconciler(t)
	userID := uuid.New()

	require.NoError(t, repo.CreateVirtualAccount(&VirtualAccount{
		UserID:        userID,
		AccountNumber: "0123456789",
		BankName:      "Wema Bank",
		Provider:      GatewayMonnify,
	}))

	event := events.GatewayEvent{
		Gateway:   GatewayMonnify,
		Event:     "SUCCESSFUL_TRANSACTION",
		Reference: "MNFY|1",
		Amount:    25000,
		Account:   "0123456789",
	}

	require.NoError(t, reconciler.Apply(event))
	require.NoError(t, reconciler.Apply(event)) // redelivery

	balance, _ := wallets.BalanceOf(userID.String())
	assert.Equal(t, int64(25000), balance)
	assert.True(t, wallets.EntryExists("va-MNFY|1"))
}

func TestApplyVirtualAccountUnknownAccount(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)

	err := reconciler.Apply(events.GatewayEvent{
		Gateway:   GatewayMonnify,
		Event:     "SUCCESSFUL_TRANSACTION",
		Reference: "MNFY|1",
		Amount:    25000,
		Account:   "9999999999",
	})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestApplyUnknownEvent(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	err := reconciler.Apply(events.GatewayEvent{Gateway: GatewayPaystack, Event: "subscription.create"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestVerifyAndApplyCreditsPendingPayment(t *testing.T) {
	var verifyCalls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifyCalls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":true,"message":"ok","data":{"status":"success","amount":50000,"channel":"card"}}`)
	}))
	defer ts.Close()

	cfg := config.Config{PaystackSecret: testPaystackSecret}
	wallets := wallet.NewService(ledger.NewMemoryStore())
	repo := NewMemoryRepository()
	paystack := &PaystackClient{Secret: testPaystackSecret, BaseURL: ts.URL, HTTPClient: ts.Client()}
	reconciler := NewReconciler(cfg, wallets, repo, paystack, notification.NewLogSender())

	userID := uuid.New()
	require.NoError(t, repo.CreatePayment(&Payment{
		UserID:    userID,
		Reference: "dep-1",
		Gateway:   GatewayPaystack,
		Amount:    50000,
		Status:    StatusPending,
	}))

	status, err := reconciler.VerifyAndApply("dep-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1, verifyCalls)

	balance, _ := wallets.BalanceOf(userID.String())
	assert.Equal(t, int64(50000), balance)

	// a later manual verify short-circuits on the ledger entry, no gateway call
	status, err = reconciler.VerifyAndApply("dep-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, 1, verifyCalls)
}
