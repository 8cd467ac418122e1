// Package notification is the event port the orchestrator calls on order
// lifecycle transitions. Delivery is synchronous and in registration order.
package notification

import (
	"context"
	"sync"
	"time"

	"remit/pkg/logger"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventDeliveryError        EventType = "DELIVERY_ERROR"
	EventRetryScheduled       EventType = "RETRY_SCHEDULED"
	EventRefundRequired       EventType = "REFUND_REQUIRED"
	EventManualReviewRequired EventType = "MANUAL_REVIEW_REQUIRED"
	EventOrderCompleted       EventType = "ORDER_COMPLETED"
)

// Event is one lifecycle notification.
type Event struct {
	Type        EventType              `json:"type"`
	OrderID     string                 `json:"order_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	UserMessage string                 `json:"user_message,omitempty"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
}

// Subscriber receives events. Handlers must not block; slow consumers should
// hand off internally.
type Subscriber interface {
	Handle(ctx context.Context, event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event)

func (f SubscriberFunc) Handle(ctx context.Context, event Event) { f(ctx, event) }

// Service fans events out to registered subscribers in registration order.
type Service struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      logger.Logger
}

func NewService(log logger.Logger) *Service {
	return &Service{logger: log}
}

// Subscribe appends a subscriber. Order of registration is delivery order.
func (s *Service) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Notify delivers the event to every subscriber synchronously and logs it.
func (s *Service) Notify(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	s.logger.Info("Order event", map[string]interface{}{
		"event_type": event.Type,
		"order_id":   event.OrderID,
		"detail":     event.Detail,
	})

	s.mu.RLock()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.Handle(ctx, event)
	}
}
