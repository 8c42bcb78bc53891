package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/config"
	"github.com/cidadao-ai/citizen-intake/internal/events"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
)

const defaultNotificationQueueSize = 256

// NotificationService is the side channel that announces new tickets,
// status changes and processed messages. Subscribed events are queued and
// delivered by notification workers, so a slow webhook never holds up the
// operation that published the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  redis.Cmdable
	httpClient *http.Client
	logger     *zap.Logger
	cfg        config.NotificationConfig
	queue      chan events.Event
}

// NewNotificationService creates the service. A nil publisher disables the
// redis broadcast, an empty WebhookURL disables the webhook.
func NewNotificationService(dispatcher events.Dispatcher, publisher redis.Cmdable, httpClient *http.Client, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultNotificationQueueSize
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		httpClient: httpClient,
		logger:     observability.Named(logger, "notifications"),
		cfg:        cfg,
		queue:      make(chan events.Event, size),
	}
}

// RegisterHandlers subscribes the delivery queue to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.enqueue)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.enqueue)
	n.dispatcher.Subscribe(events.EventMessageProcessed, n.enqueue)
}

// enqueue never blocks; a full queue drops the event.
func (n *NotificationService) enqueue(_ context.Context, event events.Event) error {
	select {
	case n.queue <- event:
	default:
		n.logger.Warn("notification queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
	}
	return nil
}

// Events is the queue notification workers drain.
func (n *NotificationService) Events() <-chan events.Event {
	return n.queue
}

// Deliver broadcasts event on redis and posts it to the webhook.
func (n *NotificationService) Deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	n.logger.Debug("notifying", zap.String("event_type", string(event.Type)), zap.String("ticket_id", event.TicketID))

	var errs []string
	if err := n.broadcast(ctx, body); err != nil {
		errs = append(errs, err.Error())
	}
	if err := n.postWebhook(ctx, body); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify %s: %s", event.Type, strings.Join(errs, "; "))
	}
	return nil
}

func (n *NotificationService) broadcast(ctx context.Context, body []byte) error {
	if n.publisher == nil || n.cfg.RedisChannel == "" {
		return nil
	}
	if err := n.publisher.Publish(ctx, n.cfg.RedisChannel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (n *NotificationService) postWebhook(ctx context.Context, body []byte) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post: status %d", resp.StatusCode)
	}
	return nil
}
