// Package events delivers Subscribed and Unsubscribed notifications after a
// permission change has been accepted by the messaging client.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/v1/models"
)

// DefaultStream is the Redis stream consent events are appended to
const DefaultStream = "consent-events"

// Notifier receives consent events
type Notifier interface {
	Notify(ctx context.Context, event models.ConsentEvent) error
}

// StreamPublisher appends a flat record to a stream. *redis.RedisClient satisfies it.
type StreamPublisher interface {
	PublishEvent(ctx context.Context, streamName string, data map[string]interface{}) (string, error)
}

// RedisStreamNotifier appends each event to a Redis stream with XADD
type RedisStreamNotifier struct {
	publisher StreamPublisher
	stream    string
}

// NewRedisStreamNotifier creates a notifier writing to stream, or DefaultStream if empty
func NewRedisStreamNotifier(publisher StreamPublisher, stream string) *RedisStreamNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamNotifier{publisher: publisher, stream: stream}
}

func (n *RedisStreamNotifier) Notify(ctx context.Context, event models.ConsentEvent) error {
	start := time.Now()
	msgID, err := n.publisher.PublishEvent(ctx, n.stream, streamValues(event))
	monitoring.RecordExternalCall("redis", "publish_consent_event", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	slog.Debug("Published consent event", "stream", n.stream, "message_id", msgID, "event_id", event.EventID)
	return nil
}

// streamValues flattens an event into stream fields
func streamValues(event models.ConsentEvent) map[string]interface{} {
	return map[string]interface{}{
		"event_id":      event.EventID.String(),
		"type":          string(event.Type),
		"owner_address": event.OwnerAddress,
		"peer_address":  event.PeerAddress,
		"permission":    string(event.Permission),
		"occurred_at":   event.OccurredAt.Format(time.RFC3339Nano),
	}
}

// LogNotifier writes events to the structured log
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, event models.ConsentEvent) error {
	slog.Info("Consent event",
		"event_id", event.EventID,
		"type", event.Type,
		"owner", event.OwnerAddress,
		"peer", event.PeerAddress,
		"permission", event.Permission)
	return nil
}

// MultiNotifier fans an event out to every notifier. All notifiers run even
// when one fails; the errors are joined.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event models.ConsentEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FuncNotifier adapts subscribe and unsubscribe callbacks. Each callback gets
// the owner whose list changed and the permission now in effect. Nil callbacks
// are skipped.
type FuncNotifier struct {
	OnSubscribe   func(owner string, state models.Permission)
	OnUnsubscribe func(owner string, state models.Permission)
}

func (f FuncNotifier) Notify(ctx context.Context, event models.ConsentEvent) error {
	switch event.Type {
	case models.EventSubscribed:
		if f.OnSubscribe != nil {
			f.OnSubscribe(event.OwnerAddress, event.Permission)
		}
	case models.EventUnsubscribed:
		if f.OnUnsubscribe != nil {
			f.OnUnsubscribe(event.OwnerAddress, event.Permission)
		}
	default:
		return fmt.Errorf("unknown consent event type %q", event.Type)
	}
	return nil
}
