package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/billhaven/billhaven-backend/pkg/events"
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

// WebhookWorker drains verified gateway events off the redis queue and feeds
// them to the reconciler. Record-not-found errors are retried with backoff to
// ride out the race where the webhook beats the initiating request's commit.
type WebhookWorker struct {
	Reconciler  *Reconciler
	RedisClient *events.RedisClient
}

func NewWebhookWorker(reconciler *Reconciler, redisClient *events.RedisClient) *WebhookWorker {
	return &WebhookWorker{Reconciler: reconciler, RedisClient: redisClient}
}

func (w *WebhookWorker) Start() {
	logger.Info("Starting webhook worker...")
	go w.processEvents()
}

func (w *WebhookWorker) processEvents() {
	for {
		result, err := w.RedisClient.Client.BLPop(context.Background(), 5*time.Second, events.WebhookQueue).Result()
		if err != nil {
			continue
		}

		eventData := []byte(result[1])
		var event events.GatewayEvent
		if err := json.Unmarshal(eventData, &event); err != nil {
			logger.Error("WebhookWorker: Failed to unmarshal event", logger.Fields{"error": err.Error(), "data": string(eventData)})
			w.moveToDLQ(eventData)
			continue
		}

		w.handleEvent(event, eventData)
	}
}

func (w *WebhookWorker) handleEvent(event events.GatewayEvent, rawData []byte) {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.Reconciler.Apply(event)
		if err == nil {
			logger.Info("WebhookWorker: Successfully processed event", logger.Fields{
				"event":             event.Event,
				logger.ReferenceKey: event.Reference,
			})
			return
		}

		if errors.Is(err, ErrUnknownEvent) {
			return
		}

		logger.Warn("WebhookWorker: Failed to process event, retrying", logger.Fields{
			"event":             event.Event,
			logger.ReferenceKey: event.Reference,
			"attempt":           i + 1,
			"error":             err.Error(),
		})
		time.Sleep(time.Duration(i+1) * time.Second)
	}

	logger.Error("WebhookWorker: Max retries exhausted, moving to DLQ", logger.Fields{logger.ReferenceKey: event.Reference})
	w.moveToDLQ(rawData)
}

func (w *WebhookWorker) moveToDLQ(data []byte) {
	if err := w.RedisClient.PushToDLQ(context.Background(), data); err != nil {
		logger.Error("Worker: Failed to push to DLQ", logger.Fields{"error": err.Error()})
	}
}
