package notifications

import (
	"context"

	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Sender emits notifications on behalf of other services.
type Sender interface {
	Notify(ctx context.Context, userID, kind, message string, payload map[string]interface{})
}

// Notifier stores notifications and announces them on the member's Redis
// channel. It never fails the caller: errors are logged and counted.
type Notifier struct {
	store   *Store
	redis   *postgres.RedisClient
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewNotifier creates a notifier. A nil redis client disables publishing.
func NewNotifier(store *Store, redis *postgres.RedisClient, logger *observability.Logger, metrics *observability.Metrics) *Notifier {
	if logger == nil {
		logger = observability.Default()
	}
	return &Notifier{store: store, redis: redis, logger: logger, metrics: metrics}
}

// Notify implements Sender.
func (n *Notifier) Notify(ctx context.Context, userID, kind, message string, payload map[string]interface{}) {
	if userID == "" {
		return
	}
	log := n.logger.WithFields(map[string]interface{}{
		"recipient": userID,
		"type":      kind,
	})

	stored, err := n.store.Insert(ctx, userID, kind, message, payload)
	if err != nil {
		log.WithError(err).Warn("failed to store notification")
		n.metrics.ObserveNotification(kind, "failed")
		return
	}
	n.metrics.ObserveNotification(kind, "stored")

	if n.redis == nil {
		return
	}
	_, err = n.redis.Publish(ctx, Channel(userID), Published{
		ID:      stored.ID,
		Type:    stored.Type,
		Message: stored.Message,
		Payload: stored.Payload,
	})
	if err != nil {
		log.WithError(err).Warn("failed to publish notification")
		n.metrics.ObserveNotification(kind, "publish_failed")
	}
}
