package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/config"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/events"
)

func TestNotificationBroadcastsAndPostsWebhook(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "intake:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	hooks := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		hooks <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	dispatcher := events.NewInMemoryDispatcher(nil)
	notifier := NewNotificationService(dispatcher, client, srv.Client(), nil, config.NotificationConfig{
		RedisChannel: "intake:events",
		WebhookURL:   srv.URL,
	})
	notifier.RegisterHandlers()

	dispatcher.Publish(ctx, events.New(events.EventTicketCreated, "t-1", events.Actor{Type: domain.SubjectTypeSystem}, time.Now(),
		events.TicketCreatedPayload{Protocol: "GERAL-2024-001", TeamName: domain.DefaultTeamName, Priority: domain.PriorityNormal}))
	require.Len(t, notifier.Events(), 1)
	require.NoError(t, notifier.Deliver(ctx, <-notifier.Events()))

	select {
	case msg := <-sub.Channel():
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
		assert.Equal(t, "ticket_created", decoded["type"])
		assert.Equal(t, "GERAL-2024-001", decoded["payload"].(map[string]any)["protocol"])
	case <-time.After(2 * time.Second):
		t.Fatal("no redis broadcast received")
	}

	select {
	case body := <-hooks:
		assert.Contains(t, string(body), `"ticket_id":"t-1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook received")
	}
}

func TestNotificationReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	notifier := NewNotificationService(nil, nil, srv.Client(), nil, config.NotificationConfig{WebhookURL: srv.URL})
	err := notifier.Deliver(context.Background(), events.New(events.EventMessageProcessed, "", events.Actor{Type: domain.SubjectTypeCitizen}, time.Now(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNotificationDisabledTargets(t *testing.T) {
	notifier := NewNotificationService(nil, nil, nil, nil, config.NotificationConfig{})
	notifier.RegisterHandlers()
	assert.NoError(t, notifier.Deliver(context.Background(), events.New(events.EventTicketStatusChanged, "t", events.Actor{}, time.Now(), nil)))
}

func TestNotificationPublishDoesNotWaitForWebhook(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	dispatcher := events.NewInMemoryDispatcher(nil)
	notifier := NewNotificationService(dispatcher, nil, srv.Client(), nil, config.NotificationConfig{WebhookURL: srv.URL, QueueSize: 2})
	notifier.RegisterHandlers()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			dispatcher.Publish(context.Background(), events.New(events.EventMessageProcessed, "", events.Actor{Type: domain.SubjectTypeCitizen}, time.Now(), nil))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on notification delivery")
	}
	assert.Len(t, notifier.Events(), 2, "events beyond the queue size are dropped")
}
