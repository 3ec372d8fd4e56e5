package wallet

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/user"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	Config  config.Config
	Service *Service
}

func NewHandler(cfg config.Config, service *Service) *Handler {
	return &Handler{Config: cfg, Service: service}
}

type CreateWalletRequest struct {
	Pin string `json:"pin"`
}

// CreateWallet provisions the wallet (if the ledger hasn't already done so
// lazily) and sets the transaction PIN.
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req CreateWalletRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if len(req.Pin) != 4 {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "PIN must be 4 digits", nil)
		return
	}

	store := h.Service.Store()
	if existing, err := store.WalletByUserID(usr.ID.String()); err == nil && existing.PinHash != "" {
		utils.BuildErrorResponse(w, http.StatusConflict, "User already has a wallet", nil)
		return
	}

	// provisions a zero-balance wallet if none exists yet
	if _, err := h.Service.BalanceOf(usr.ID.String()); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create wallet", nil)
		return
	}

	hashedPin, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to secure PIN", nil)
		return
	}

	if err := store.SetPin(usr.ID.String(), string(hashedPin)); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create wallet", nil)
		return
	}

	wallet, err := store.WalletByUserID(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to load wallet", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Wallet created successfully", map[string]interface{}{
		"wallet_number": wallet.WalletNumber,
		"balance":       wallet.Balance,
		"currency":      wallet.Currency,
	})
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Service.Store().WalletByUserID(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Wallet not found", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Details", wallet)
}

func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	balance, err := h.Service.BalanceOf(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch balance", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Balance", map[string]any{
		"balance": balance,
	})
}

type TransferRequest struct {
	WalletNumber string `json:"wallet_number"`
	Amount       int64  `json:"amount"`
	Pin          string `json:"pin"`
	Description  string `json:"description"`
}

func (h *Handler) TransferFunds(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	var req TransferRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if req.Amount < h.Config.MinTransactionAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount, can't be less than 100 Naira (10000 Kobo)", nil)
		return
	}

	store := h.Service.Store()
	senderWallet, err := store.WalletByUserID(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Sender wallet not found", nil)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(senderWallet.PinHash), []byte(req.Pin)); err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid PIN", nil)
		return
	}

	if senderWallet.WalletNumber == req.WalletNumber {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Cannot transfer to self", nil)
		return
	}

	recipientWallet, err := store.WalletByNumber(req.WalletNumber)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Recipient wallet not found", nil)
		return
	}

	reference := fmt.Sprintf("trf-%d", time.Now().UnixNano())
	result, err := h.Service.Transfer(usr.ID.String(), recipientWallet.UserID.String(), req.Amount, reference, req.Description)
	if err != nil {
		var ife *ledger.InsufficientFundsError
		if errors.As(err, &ife) {
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Insufficient balance", map[string]int64{
				"required":  ife.Required,
				"available": ife.Available,
			})
			return
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Transfer failed", map[string]string{"error": err.Error()})
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transfer completed", result)
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	limit, offset, page := utils.GetPaginationDetails(r)

	entries, count, err := h.Service.History(usr.ID.String(), limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch transactions", nil)
		return
	}

	totalPages := int(math.Ceil(float64(count) / float64(limit)))

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction History", map[string]interface{}{
		"transactions": entries,
		"meta": map[string]interface{}{
			"total_items":  count,
			"total_pages":  totalPages,
			"current_page": page,
			"limit":        limit,
		},
	})
}
