package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billhaven/billhaven-backend/cmd/routes"
	"github.com/billhaven/billhaven-backend/internal/auth"
	"github.com/billhaven/billhaven-backend/internal/idempotency"
	"github.com/billhaven/billhaven-backend/internal/key"
	"github.com/billhaven/billhaven-backend/internal/ledger"
	"github.com/billhaven/billhaven-backend/internal/notification"
	"github.com/billhaven/billhaven-backend/internal/payment"
	"github.com/billhaven/billhaven-backend/internal/purchase"
	"github.com/billhaven/billhaven-backend/internal/user"
	"github.com/billhaven/billhaven-backend/internal/wallet"
	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/database"
	"github.com/billhaven/billhaven-backend/pkg/events"
	"github.com/billhaven/billhaven-backend/pkg/logger"
	"github.com/gorilla/mux"
)

func main() {
	cfg := config.LoadConfig()

	database.Connect(cfg.DBUrl)
	if err := database.DB.AutoMigrate(
		&user.User{},
		&key.APIKey{},
		&ledger.Wallet{},
		&ledger.Entry{},
		&payment.Payment{},
		&payment.VirtualAccount{},
		&purchase.Record{},
	); err != nil {
		logger.Fatal("Database migration failed", logger.Fields{"error": err.Error()})
	}

	redisClient := events.NewRedisClient(cfg)

	userRepo := user.NewRepository(database.DB)
	keyRepo := key.NewRepository(database.DB)
	paymentRepo := payment.NewRepository(database.DB)
	purchaseRepo := purchase.NewRepository(database.DB)

	ledgerStore := ledger.NewGormStore(database.DB)
	walletService := wallet.NewService(ledgerStore)
	notifier := notification.NewLogSender()
	guard := idempotency.NewGuard(redisClient.Client, 10*time.Minute)

	paystack := payment.NewPaystackClient(cfg)
	monnify := payment.NewMonnifyClient(cfg)
	vtpass := purchase.NewVTPassClient(cfg)
	reloadly := purchase.NewReloadlyClient(cfg)

	gateways := map[purchase.Product]purchase.Gateway{
		purchase.ProductAirtime:     vtpass,
		purchase.ProductData:        vtpass,
		purchase.ProductTV:          vtpass,
		purchase.ProductElectricity: vtpass,
		purchase.ProductInsurance:   vtpass,
		purchase.ProductSMS:         vtpass,
		purchase.ProductGiftCard:    reloadly,
	}

	orchestrator := purchase.NewOrchestrator(walletService, purchaseRepo, gateways, guard, notifier)
	paymentReconciler := payment.NewReconciler(cfg, walletService, paymentRepo, paystack, notifier)

	// background workers
	purchase.NewReconciler(orchestrator, purchaseRepo).Start()
	payment.NewWebhookWorker(paymentReconciler, redisClient).Start()

	deps := routes.Dependencies{
		UserRepo: userRepo,
		KeyRepo:  keyRepo,
		Auth:     auth.NewHandler(cfg, userRepo),
		Key:      key.NewHandler(cfg, keyRepo),
		Wallet:   wallet.NewHandler(cfg, walletService),
		Payment:  payment.NewHandler(cfg, paymentRepo, paymentReconciler, paystack, monnify, redisClient),
		Purchase: purchase.NewHandler(cfg, orchestrator, purchaseRepo),
	}

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, deps)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("Server gracefully shut down")
}
