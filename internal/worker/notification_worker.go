package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/service"
)

const notificationDeliveryTimeout = 10 * time.Second

// StartNotificationWorker subscribes notifications to domain events and
// starts that many delivery goroutines, which run until ctx is cancelled.
// The returned function waits for them to stop.
func StartNotificationWorker(ctx context.Context, notifications *service.NotificationService, workers int, logger *zap.Logger) (wait func()) {
	if notifications == nil {
		return func() {}
	}
	if workers <= 0 {
		workers = 1
	}
	logger = observability.Named(logger, "notification-worker")
	notifications.RegisterHandlers()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			deliverNotifications(ctx, notifications, logger.With(zap.Int("worker", id)))
		}(i)
	}
	logger.Info("notification workers started", zap.Int("workers", workers))
	return wg.Wait
}

func deliverNotifications(ctx context.Context, notifications *service.NotificationService, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-notifications.Events():
			deliverCtx, cancel := context.WithTimeout(ctx, notificationDeliveryTimeout)
			if err := notifications.Deliver(deliverCtx, event); err != nil {
				logger.Warn("notification delivery failed",
					zap.String("event_type", string(event.Type)),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
			cancel()
		}
	}
}
