package payment

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/billhaven/billhaven-backend/internal/user"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/events"
	"github.com/billhaven/billhaven-backend/pkg/logger"
	"github.com/billhaven/billhaven-backend/pkg/utils"
	"github.com/gorilla/mux"
)

type Handler struct {
	Config      config.Config
	Repo        Repository
	Reconciler  *Reconciler
	Paystack    *PaystackClient
	Monnify     *MonnifyClient
	RedisClient *events.RedisClient
}

func NewHandler(cfg config.Config, repo Repository, reconciler *Reconciler, paystack *PaystackClient, monnify *MonnifyClient, redisClient *events.RedisClient) *Handler {
	return &Handler{
		Config:      cfg,
		Repo:        repo,
		Reconciler:  reconciler,
		Paystack:    paystack,
		Monnify:     monnify,
		RedisClient: redisClient,
	}
}

type DepositRequest struct {
	Amount int64 `json:"amount"` // in Kobo
}

// Deposit initializes a Paystack checkout and records the pending payment.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	var req DepositRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if req.Amount < h.Config.MinTransactionAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount, can't be less than 100 Naira (10000 Kobo)", nil)
		return
	}

	reference := fmt.Sprintf("dep-%s-%d", usr.ID.String(), time.Now().UnixNano())
	callbackURL := fmt.Sprintf("%s/api/payments/deposit/callback", h.Config.Host)

	result, err := h.Paystack.InitializeTransaction(usr.Email, req.Amount, reference, callbackURL, map[string]interface{}{
		"user_id": usr.ID.String(),
	})
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Failed to initialize deposit", nil)
		return
	}

	payment := Payment{
		UserID:    usr.ID,
		Reference: reference,
		Gateway:   GatewayPaystack,
		Amount:    req.Amount,
		Status:    StatusPending,
	}
	if err := h.Repo.CreatePayment(&payment); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to register payment", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Deposit initialized", result)
}

// GetDepositStatus reports a payment's state, falling back to a live gateway
// verification while it is still pending. The verify path credits the wallet
// through the same reconciler the webhook uses.
func (h *Handler) GetDepositStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reference := vars["reference"]

	payment, err := h.Repo.PaymentByReference(reference)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	status := payment.Status
	if status == StatusPending {
		verified, err := h.Reconciler.VerifyAndApply(reference)
		if err != nil {
			logger.Warn("Deposit status: live verification failed", logger.Fields{
				logger.ReferenceKey: reference,
				"error":             err.Error(),
			})
		} else {
			status = verified
		}
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Payment status retrieved", map[string]interface{}{
		"reference": payment.Reference,
		"status":    status,
		"amount":    payment.Amount,
		"gateway":   payment.Gateway,
	})
}

// CreateVirtualAccount reserves a Monnify bank account for the user.
func (h *Handler) CreateVirtualAccount(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	if existing, err := h.Repo.VirtualAccountForUser(usr.ID.String()); err == nil {
		utils.BuildSuccessResponse(w, http.StatusOK, "Virtual account", existing)
		return
	}

	account, err := h.Monnify.CreateReservedAccount(usr.ID.String(), usr.Name, usr.Email)
	if err != nil {
		logger.Error("Failed to reserve virtual account", logger.Fields{
			logger.UserIdKey: usr.ID.String(),
			"error":          err.Error(),
		})
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Failed to create virtual account", nil)
		return
	}

	va := VirtualAccount{
		UserID:        usr.ID,
		AccountNumber: account.AccountNumber,
		BankName:      account.BankName,
		Provider:      GatewayMonnify,
	}
	if err := h.Repo.CreateVirtualAccount(&va); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to save virtual account", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Virtual account created", va)
}

// PaystackWebhook verifies and enqueues Paystack notifications. The response
// is always 200 for recognized-but-unprocessable payloads so the gateway
// stops redelivering; anomalies are logged for operators.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, GatewayPaystack, r.Header.Get("x-paystack-signature"))
}

func (h *Handler) MonnifyWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, GatewayMonnify, r.Header.Get("monnify-signature"))
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request, gateway, signature string) {
	logger.Info("Webhook received", logger.Fields{
		logger.GatewayKey: gateway,
		"remote_addr":     r.RemoteAddr,
	})

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Webhook: Failed to read body", logger.Fields{"error": err.Error()})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.Reconciler.VerifySignature(gateway, signature, body) {
		logger.Error("Webhook: Signature mismatch", logger.Fields{
			logger.GatewayKey: gateway,
			"remote_addr":     r.RemoteAddr,
		})
		// acknowledged but rejected: a non-200 would only trigger a retry storm
		w.WriteHeader(http.StatusOK)
		return
	}

	event, err := h.Reconciler.ParseEvent(gateway, body)
	if err != nil {
		logger.Error("Webhook: Unparseable payload", logger.Fields{
			logger.GatewayKey: gateway,
			"error":           err.Error(),
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.RedisClient.PublishEvent(r.Context(), event); err != nil {
		// fall back to synchronous processing rather than dropping the event
		logger.Error("Webhook: Failed to enqueue event, applying inline", logger.Fields{
			logger.ReferenceKey: event.Reference,
			"error":             err.Error(),
		})
		if applyErr := h.Reconciler.Apply(event); applyErr != nil && !errors.Is(applyErr, ErrUnknownEvent) {
			logger.Error("Webhook: Inline apply failed", logger.Fields{
				logger.ReferenceKey: event.Reference,
				"error":             applyErr.Error(),
			})
		}
	}

	w.WriteHeader(http.StatusOK)
}
