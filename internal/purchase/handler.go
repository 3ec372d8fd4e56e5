package purchase

import (
	"errors"
	"math"
	"net/http"

	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/user"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/utils"
	"github.com/gorilla/mux"
)

type Handler struct {
	Config       config.Config
	Orchestrator *Orchestrator
	Repo         Repository
}

func NewHandler(cfg config.Config, orchestrator *Orchestrator, repo Repository) *Handler {
	return &Handler{Config: cfg, Orchestrator: orchestrator, Repo: repo}
}

type PurchaseRequest struct {
	Product     string `json:"product"`
	ServiceID   string `json:"service_id"`
	CustomerRef string `json:"customer_ref"`
	Amount      int64  `json:"amount"` // in Kobo
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req PurchaseRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if req.Amount < h.Config.MinTransactionAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount, can't be less than 100 Naira (10000 Kobo)", nil)
		return
	}
	if req.ServiceID == "" || req.CustomerRef == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "service_id and customer_ref are required", nil)
		return
	}

	result, err := h.Orchestrator.Execute(r.Context(), PurchaseInput{
		UserID:      usr.ID.String(),
		Product:     Product(req.Product),
		ServiceID:   req.ServiceID,
		CustomerRef: req.CustomerRef,
		Amount:      req.Amount,
	})
	if err != nil {
		var ife *ledger.InsufficientFundsError
		switch {
		case errors.As(err, &ife):
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Insufficient balance", map[string]int64{
				"required":  ife.Required,
				"available": ife.Available,
			})
		case errors.Is(err, ErrUnsupportedProduct):
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Unsupported product", nil)
		default:
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Purchase failed", map[string]string{"error": err.Error()})
		}
		return
	}

	status := http.StatusOK
	message := "Purchase completed"
	switch result.Status {
	case StatusProcessing:
		status = http.StatusAccepted
		message = "Purchase pending provider confirmation"
	case StatusFailed:
		message = "Purchase failed"
		if result.Refunded {
			message = "Purchase failed, wallet refunded"
		}
	}

	utils.BuildSuccessResponse(w, status, message, result)
}

func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	vars := mux.Vars(r)
	reference := vars["reference"]

	rec, err := h.Repo.ByReference(reference)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Purchase not found", nil)
		return
	}
	if rec.UserID != usr.ID {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Purchase not found", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Purchase details", rec)
}

func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	limit, offset, page := utils.GetPaginationDetails(r)

	recs, err := h.Repo.ForUser(usr.ID.String(), limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch purchases", nil)
		return
	}

	count, _ := h.Repo.CountForUser(usr.ID.String())
	totalPages := int(math.Ceil(float64(count) / float64(limit)))

	utils.BuildSuccessResponse(w, http.StatusOK, "Purchase History", map[string]interface{}{
		"purchases": recs,
		"meta": map[string]interface{}{
			"total_items":  count,
			"total_pages":  totalPages,
			"current_page": page,
			"limit":        limit,
		},
	})
}
