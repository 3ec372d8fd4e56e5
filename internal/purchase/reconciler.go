package purchase

import (
	"context"
	"time"

	"github.com/billhaven/billhaven-backend/pkg/logger"
)

// Reconciler resolves purchases stuck in processing after an ambiguous
// provider outcome. It re-queries the provider by the original reference and
// feeds the definitive answer back through the orchestrator's resolve path,
// so a refund is only ever issued on a confirmed decline.
type Reconciler struct {
	orchestrator *Orchestrator
	repo         Repository
	interval     time.Duration
	minAge       time.Duration
	batchSize    int
	maxAttempts  int
}

func NewReconciler(orchestrator *Orchestrator, repo Repository) *Reconciler {
	return &Reconciler{
		orchestrator: orchestrator,
		repo:         repo,
		interval:     time.Minute,
		minAge:       2 * time.Minute,
		batchSize:    20,
		maxAttempts:  10,
	}
}

func (r *Reconciler) Start() {
	logger.Info("Starting purchase reconciler...")
	go r.loop()
}

func (r *Reconciler) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for range ticker.C {
		r.RunOnce(context.Background())
	}
}

// RunOnce processes one batch of stale processing records.
func (r *Reconciler) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.minAge)
	records, err := r.repo.StaleProcessing(cutoff, r.batchSize)
	if err != nil {
		logger.Error("Reconciler: failed to list stale purchases", logger.Fields{"error": err.Error()})
		return
	}

	for i := range records {
		rec := records[i]
		r.reconcile(ctx, &rec)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, rec *Record) {
	gateway, ok := r.orchestrator.gateways[rec.Product]
	if !ok {
		logger.Error("Reconciler: no gateway for product", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"product":           rec.Product,
		})
		return
	}

	guard := r.orchestrator.guard

	// a resolve may have landed between listing the batch and getting here
	if done, err := guard.IsComplete(ctx, rec.Reference); err == nil && done {
		logger.Info("Reconciler: already resolved, skipping", logger.Fields{
			logger.ReferenceKey: rec.Reference,
		})
		return
	}

	// a slow batch can overlap the next tick; one re-query per reference
	requeryRef := "requery-" + rec.Reference
	claimed, err := guard.TryClaim(ctx, requeryRef)
	if err != nil {
		logger.Warn("Reconciler: requery claim failed, relying on ledger uniqueness", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"error":             err.Error(),
		})
	} else if !claimed {
		return
	} else {
		defer guard.Release(ctx, requeryRef)
	}

	res, err := gateway.Query(rec.Reference)
	if err != nil {
		logger.Warn("Reconciler: provider query failed, will retry", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"attempt":           rec.Attempts,
			"error":             err.Error(),
		})
		r.flagIfExhausted(rec)
		return
	}

	if res.Outcome == OutcomeAmbiguous {
		logger.Info("Reconciler: still ambiguous", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"attempt":           rec.Attempts,
		})
		r.flagIfExhausted(rec)
		return
	}

	if _, err := r.orchestrator.resolve(ctx, rec, res); err != nil {
		logger.Error("Reconciler: failed to resolve purchase", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			"error":             err.Error(),
		})
		return
	}

	logger.Info("Reconciler: purchase resolved", logger.Fields{
		logger.ReferenceKey: rec.Reference,
		"outcome":           res.Outcome,
	})
}

func (r *Reconciler) flagIfExhausted(rec *Record) {
	if rec.Attempts >= r.maxAttempts {
		logger.Error("Reconciler: attempts exhausted, needs operator review", logger.Fields{
			logger.ReferenceKey: rec.Reference,
			logger.UserIdKey:    rec.UserID.String(),
			"amount":            rec.Amount,
		})
	}
}
