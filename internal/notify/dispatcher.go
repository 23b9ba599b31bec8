// Package notify hands wake requests to the push pipeline. The chat
// core only decides WHO to wake and with what text; delivery (device
// tokens, APNs/FCM) lives in a separate worker consuming the channel.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// WakeRequest is the envelope published for the push worker.
type WakeRequest struct {
	UserID    int64             `json:"user_id"`
	UserRole  string            `json:"user_role"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// Dispatcher publishes wake requests to a Redis channel. Implements
// services.Notifier.
type Dispatcher struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewDispatcher(client *redis.Client, channel string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{client: client, channel: channel, log: log}
}

// Wake queues a push notification for the user. Best-effort: the caller
// treats a failure as a lost notification, not an error in the send path.
func (d *Dispatcher) Wake(ctx context.Context, u identity.Ref, title, body string, data map[string]string) error {
	req := WakeRequest{
		UserID:   u.ID,
		UserRole: string(u.Role),
		Title:    title,
		Body:     body,
		Data:     data,
		QueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		return err
	}
	d.log.Debugf("wake queued for %s", u.Key())
	return nil
}
