// Package model содержит доменные сущности витрины аптеки.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer представляет зарегистрированного покупателя.
type Customer struct {
	ID           int64
	Login        string
	PasswordHash []byte
	PhoneNumber  string
	CreatedAt    time.Time
}

// Product описывает товар каталога. Цена товара используется при расчёте скидок.
type Product struct {
	ID     int64
	Name   string
	Slug   string
	Price  decimal.Decimal
	Active bool
}

// ProductVariant описывает вариант товара (фасовку, дозировку) с собственным остатком.
type ProductVariant struct {
	ID        int64
	ProductID int64
	Label     string
	Price     decimal.Decimal
	Stock     int
}

// Promotion описывает процентную скидку, действующую на набор товаров в заданном окне.
type Promotion struct {
	ID              int64
	Name            string
	DiscountPercent int
	StartDate       time.Time
	EndDate         time.Time
	Active          bool
	ProductIDs      []int64
}

// InEffect сообщает, действует ли акция для товара в момент at. Границы окна включительны.
func (p Promotion) InEffect(productID int64, at time.Time) bool {
	if !p.Active || at.Before(p.StartDate) || at.After(p.EndDate) {
		return false
	}
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Cart: корзина покупателя. Активной может быть не более одной корзины на покупателя.
type Cart struct {
	ID         int64
	CustomerID int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem: строка корзины. В одной корзине не больше одной строки на вариант.
type CartItem struct {
	ID        int64
	CartID    int64
	VariantID int64
	ProductID int64
	Quantity  int
}

// CartLine: строка корзины с актуальной ценой для отображения покупателю.
type CartLine struct {
	VariantID       int64
	ProductID       int64
	ProductName     string
	VariantLabel    string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent int
	Subtotal        decimal.Decimal
	Available       bool
}

// CartView: содержимое активной корзины.
type CartView struct {
	CartID    int64
	Lines     []CartLine
	Total     decimal.Decimal
	UpdatedAt time.Time
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentCIB            PaymentMethod = "CIB"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentCIB
}

// Order: оформленный заказ. После создания меняются только Status и TrackingNumber.
type Order struct {
	ID              int64
	CustomerID      int64
	OrderDate       time.Time
	TotalPrice      decimal.Decimal
	ShippingFee     decimal.Decimal
	PaymentMethod   PaymentMethod
	Status          OrderStatus
	DeliveryAddress string
	TrackingNumber  string
	Items           []OrderItem
	History         []OrderStatusHistory
}

// OrderItem: позиция заказа с ценой, зафиксированной в момент оформления.
type OrderItem struct {
	ID        int64
	OrderID   int64
	VariantID int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal возвращает стоимость позиции.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatusHistory: запись журнала статусов заказа.
type OrderStatusHistory struct {
	ID        int64
	OrderID   int64
	Status    OrderStatus
	ChangedAt time.Time
	Notes     string
}
