// Package repository содержит хранилища данных витрины: PostgreSQL и in-memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
)

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrCustomerExists возвращается при попытке зарегистрировать существующий логин.
	ErrCustomerExists = errors.New("customer already exists")
	// ErrProductExists возвращается при создании товара с занятым slug.
	ErrProductExists = errors.New("product slug already exists")
	// ErrStockConflict возвращается, если списание остатка увело бы его в минус.
	ErrStockConflict = errors.New("stock would become negative")
)

// OutboxEvent: доменное событие, записанное в той же транзакции, что и изменение данных.
type OutboxEvent struct {
	ID        int64
	EventID   string
	Type      string
	OrderID   int64
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// Queries описывает операции над данными внутри одной транзакции.
type Queries interface {
	CreateCustomer(ctx context.Context, c *model.Customer) (int64, error)
	GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error)

	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*model.Product, error)
	CreateVariant(ctx context.Context, v *model.ProductVariant) (int64, error)
	GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error)
	// LockVariants блокирует строки вариантов до конца транзакции. Отсутствующие id в результат не попадают.
	LockVariants(ctx context.Context, ids []int64) (map[int64]model.ProductVariant, error)
	DecrementStock(ctx context.Context, variantID int64, quantity int) error
	CreatePromotion(ctx context.Context, p *model.Promotion) (int64, error)
	FindActivePromotions(ctx context.Context, productID int64, at time.Time) ([]model.Promotion, error)

	GetActiveCart(ctx context.Context, customerID int64) (*model.Cart, error)
	// LockActiveCart возвращает активную корзину и блокирует её строку до конца транзакции.
	// Если корзину успели деактивировать, возвращается ErrNotFound.
	LockActiveCart(ctx context.Context, customerID int64) (*model.Cart, error)
	// GetOrCreateActiveCart возвращает активную корзину, заблокированную до конца транзакции,
	// и создаёт её, если активной корзины нет.
	GetOrCreateActiveCart(ctx context.Context, customerID int64, now time.Time) (*model.Cart, error)
	TouchCart(ctx context.Context, cartID int64, now time.Time) error
	// DeactivateCart снимает признак активности. Для уже неактивной корзины возвращает ErrNotFound.
	DeactivateCart(ctx context.Context, cartID int64, now time.Time) error
	ListCartItems(ctx context.Context, cartID int64) ([]model.CartItem, error)
	GetCartItem(ctx context.Context, cartID, variantID int64) (*model.CartItem, error)
	// AddCartItem добавляет строку или увеличивает количество в уже существующей строке варианта.
	AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error)
	SetCartItemQuantity(ctx context.Context, cartID, variantID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, variantID int64) error

	CreateOrder(ctx context.Context, o *model.Order) (int64, error)
	CreateOrderItem(ctx context.Context, item *model.OrderItem) (int64, error)
	AppendStatusHistory(ctx context.Context, h *model.OrderStatusHistory) (int64, error)
	// GetOrder возвращает заказ вместе с позициями и журналом статусов.
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	// LockOrder возвращает заголовок заказа и блокирует его строку до конца транзакции.
	LockOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, trackingNumber string) error

	InsertOutboxEvent(ctx context.Context, e OutboxEvent) error
	FetchPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkEventSent(ctx context.Context, id int64, at time.Time) error
}
