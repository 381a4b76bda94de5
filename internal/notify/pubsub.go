package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/brickmini/storefront/internal/domain"
)

// OrderCreatedEvent is the message type attribute of order notifications.
const OrderCreatedEvent = "order.created"

// PubSubNotifier publishes order payloads to a Pub/Sub topic.
type PubSubNotifier struct {
	topic  *pubsub.Topic
	now    func() time.Time
	logger Logger
}

func NewPubSubNotifier(topic *pubsub.Topic, logger Logger) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("notify: pubsub topic is required")
	}
	if logger == nil {
		logger = nopLogger
	}
	return &PubSubNotifier{topic: topic, now: time.Now, logger: logger}, nil
}

func (p *PubSubNotifier) Notify(ctx context.Context, draft domain.OrderDraft, orderNumber, orderID string) bool {
	data, err := json.Marshal(NewOrderPayload(draft, orderNumber, orderID, p.now()))
	if err != nil {
		p.logger(ctx, "notify.pubsub_failed", map[string]any{"orderNumber": orderNumber, "error": err.Error()})
		return false
	}

	attrs := map[string]string{"type": OrderCreatedEvent}
	setAttr(attrs, "orderNumber", orderNumber)
	setAttr(attrs, "orderId", orderID)
	setAttr(attrs, "paymentMethod", string(draft.PaymentMethod))

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		p.logger(ctx, "notify.pubsub_failed", map[string]any{"orderNumber": orderNumber, "error": err.Error()})
		return false
	}
	p.logger(ctx, "notify.pubsub_sent", map[string]any{"orderNumber": orderNumber, "messageId": id})
	return true
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
