// Package events описывает события заказов и их публикацию в Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event: конверт события, который уходит в топик.
type Event struct {
	EventID   string       `json:"event_id"`
	Type      string       `json:"type"`
	OrderID   int64        `json:"order_id"`
	CreatedAt time.Time    `json:"created_at"`
	Payload   OrderPayload `json:"payload"`
}

// OrderPayload: снимок заказа на момент события.
type OrderPayload struct {
	CustomerID     int64  `json:"customer_id"`
	Status         string `json:"status"`
	TotalPrice     string `json:"total_price"`
	ShippingFee    string `json:"shipping_fee"`
	PaymentMethod  string `json:"payment_method"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Items          int    `json:"items,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// NewOrderEvent собирает запись outbox для заказа.
func NewOrderEvent(eventType string, o *model.Order, notes string, at time.Time) (repository.OutboxEvent, error) {
	ev := Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		OrderID:   o.ID,
		CreatedAt: at.UTC(),
		Payload: OrderPayload{
			CustomerID:     o.CustomerID,
			Status:         string(o.Status),
			TotalPrice:     o.TotalPrice.StringFixed(2),
			ShippingFee:    o.ShippingFee.StringFixed(2),
			PaymentMethod:  string(o.PaymentMethod),
			TrackingNumber: o.TrackingNumber,
			Items:          len(o.Items),
			Notes:          notes,
		},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return repository.OutboxEvent{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return repository.OutboxEvent{
		EventID:   ev.EventID,
		Type:      eventType,
		OrderID:   o.ID,
		Payload:   data,
		CreatedAt: at,
	}, nil
}
