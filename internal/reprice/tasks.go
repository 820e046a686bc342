package reprice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/store"
)

// KindOrderRecalculate is the queue kind for asynchronous order recalculation.
const KindOrderRecalculate = "pricing:order-recalculate"

// RecalculatePayload is the task body of KindOrderRecalculate.
type RecalculatePayload struct {
	OrderID string `json:"orderId"`
	Trigger string `json:"trigger,omitempty"`
}

// NewRecalculateTask builds a queue task for orderID. Tasks with the same
// idempotency key collapse while one is pending.
func NewRecalculateTask(orderID, trigger, idempotencyKey string) (queue.Task, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return queue.Task{}, errors.New("reprice: order id required")
	}
	payload, err := json.Marshal(RecalculatePayload{OrderID: orderID, Trigger: trigger})
	if err != nil {
		return queue.Task{}, err
	}
	if idempotencyKey == "" {
		idempotencyKey = "order:" + orderID
	}
	return queue.Task{Kind: KindOrderRecalculate, Payload: payload, IdempotencyKey: idempotencyKey}, nil
}

// HandleRecalculate is the queue handler for KindOrderRecalculate. Orders
// that no longer exist are dropped instead of retried.
func (s *Service) HandleRecalculate(ctx context.Context, t queue.Task) error {
	var p RecalculatePayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		s.Logger.Error().Err(err).Str("kind", t.Kind).Msg("drop malformed recalculation task")
		return nil
	}
	trigger := p.Trigger
	if trigger == "" {
		trigger = TriggerQueue
	}
	_, err := s.RecalculateOrder(ctx, p.OrderID, trigger)
	if errors.Is(err, store.ErrNotFound) {
		s.Logger.Warn().Str("order_id", p.OrderID).Msg("drop recalculation of missing order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("recalculate order %s (attempt %d): %w", p.OrderID, t.Attempt, err)
	}
	return nil
}
