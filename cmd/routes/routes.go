package routes

import (
	"net/http"
	"os"

	"github.com/billhaven/billhaven-backend/internal/auth"
	"github.com/billhaven/billhaven-backend/internal/key"
	"github.com/billhaven/billhaven-backend/internal/middleware"
	"github.com/billhaven/billhaven-backend/internal/payment"
	"github.com/billhaven/billhaven-backend/internal/purchase"
	"github.com/billhaven/billhaven-backend/internal/user"
	"github.com/billhaven/billhaven-backend/internal/wallet"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/logger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"
)

// Dependencies carries the wired handlers and the repositories the auth
// middleware needs.
type Dependencies struct {
	UserRepo user.Repository
	KeyRepo  key.Repository

	Auth     *auth.Handler
	Key      *key.Handler
	Wallet   *wallet.Handler
	Payment  *payment.Handler
	Purchase *purchase.Handler
}

func RegisterRoutes(r *mux.Router, cfg config.Config, deps Dependencies) http.Handler {
	r.Use(middleware.LoggingMiddleware)

	limiter := middleware.NewRateLimiter(rate.Limit(10), 20)
	r.Use(limiter.Limit)

	authR := r.PathPrefix("/api/auth").Subrouter()
	authR.HandleFunc("/google", deps.Auth.GoogleLogin).Methods("GET")
	authR.HandleFunc("/google/callback", deps.Auth.GoogleCallback).Methods("GET")

	meR := r.PathPrefix("/api/auth/me").Subrouter()
	meR.Use(auth.JWTMiddleware(cfg, deps.UserRepo))
	meR.HandleFunc("", deps.Auth.Me).Methods("GET")

	// API keys are managed with a session token only
	keysR := r.PathPrefix("/api/keys").Subrouter()
	keysR.Use(auth.JWTMiddleware(cfg, deps.UserRepo))
	keysR.HandleFunc("", deps.Key.ListAPIKeys).Methods("GET")
	keysR.HandleFunc("/create", deps.Key.CreateAPIKey).Methods("POST")
	keysR.HandleFunc("/rollover", deps.Key.RolloverAPIKey).Methods("POST")
	keysR.HandleFunc("/revoke", deps.Key.RevokeAPIKey).Methods("POST")

	unified := auth.UnifiedAuthMiddleware(cfg, deps.KeyRepo, deps.UserRepo)

	walletR := r.PathPrefix("/api/wallet").Subrouter()

	createR := walletR.PathPrefix("/create").Subrouter()
	createR.Use(auth.JWTMiddleware(cfg, deps.UserRepo))
	createR.HandleFunc("", deps.Wallet.CreateWallet).Methods("POST")

	walletReadR := walletR.PathPrefix("").Subrouter()
	walletReadR.Use(unified, auth.RequirePermission(key.PermissionRead))
	walletReadR.HandleFunc("", deps.Wallet.GetWallet).Methods("GET")
	walletReadR.HandleFunc("/balance", deps.Wallet.GetWalletBalance).Methods("GET")
	walletReadR.HandleFunc("/transactions", deps.Wallet.GetTransactions).Methods("GET")

	transferR := walletR.PathPrefix("/transfer").Subrouter()
	transferR.Use(unified, auth.RequirePermission(key.PermissionTransfer))
	transferR.HandleFunc("", deps.Wallet.TransferFunds).Methods("POST")

	paymentsR := r.PathPrefix("/api/payments").Subrouter()

	// gateways call these unauthenticated; the HMAC signature is the auth
	paymentsR.HandleFunc("/paystack/webhook", deps.Payment.PaystackWebhook).Methods("POST")
	paymentsR.HandleFunc("/monnify/webhook", deps.Payment.MonnifyWebhook).Methods("POST")

	fundR := paymentsR.PathPrefix("").Subrouter()
	fundR.Use(unified, auth.RequirePermission(key.PermissionFund))
	fundR.HandleFunc("/deposit", deps.Payment.Deposit).Methods("POST")
	fundR.HandleFunc("/virtual-account", deps.Payment.CreateVirtualAccount).Methods("POST")

	depositStatusR := paymentsR.PathPrefix("/deposit").Subrouter()
	depositStatusR.Use(unified, auth.RequirePermission(key.PermissionRead))
	depositStatusR.HandleFunc("/{reference}/status", deps.Payment.GetDepositStatus).Methods("GET")

	purchasesR := r.PathPrefix("/api/purchases").Subrouter()

	buyR := purchasesR.PathPrefix("").Subrouter()
	buyR.Use(unified, auth.RequirePermission(key.PermissionPurchase))
	buyR.HandleFunc("", deps.Purchase.CreatePurchase).Methods("POST")

	purchaseReadR := purchasesR.PathPrefix("").Subrouter()
	purchaseReadR.Use(unified, auth.RequirePermission(key.PermissionRead))
	purchaseReadR.HandleFunc("", deps.Purchase.GetPurchases).Methods("GET")
	purchaseReadR.HandleFunc("/{reference}", deps.Purchase.GetPurchase).Methods("GET")

	if cfg.Env != "production" {
		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(content)
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-api-key"}),
	)

	return corsObj(r)
}
