package model

import "github.com/shopspring/decimal"

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusReturned  OrderStatus = "RETURNED"
)

// orderTransitions перечисляет допустимые переходы. CANCELLED и RETURNED: конечные статусы.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusReturned},
	// Оплата наложенным платежом фиксируется после доставки.
	OrderStatusDelivered: {OrderStatusPaid, OrderStatusReturned},
}

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// CanTransitionTo сообщает, допустим ли переход из статуса s в next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var (
	// FreeShippingThreshold: сумма заказа, строго выше которой доставка бесплатна.
	FreeShippingThreshold = decimal.NewFromInt(10000)
	// FlatShippingFee: фиксированная стоимость доставки.
	FlatShippingFee = decimal.NewFromInt(600)
)

// ShippingFee возвращает стоимость доставки для суммы заказа.
func ShippingFee(total decimal.Decimal) decimal.Decimal {
	if total.GreaterThan(FreeShippingThreshold) {
		return decimal.Zero
	}
	return FlatShippingFee
}

// ItemsTotal возвращает сумму unitPrice × quantity по всем позициям.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
