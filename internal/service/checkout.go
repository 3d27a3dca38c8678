package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/events"
	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/pricing"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

// Этапы оформления заказа. При ошибке на любом этапе транзакция откатывается и корзина остаётся нетронутой.
const (
	StageGathering  = "GATHERING"
	StageValidating = "VALIDATING"
	StagePricing    = "PRICING"
	StageCommitting = "COMMITTING"
)

const checkoutNote = "order placed by customer"

// Checkout превращает активную корзину покупателя в заказ.
//
// Строки вариантов блокируются до конца транзакции, поэтому проверка остатка и его списание
// неделимы: два параллельных оформления не могут продать последнюю единицу дважды.
// Цена каждой позиции фиксируется на этапе PRICING и дальше не пересчитывается.
func (s *Service) Checkout(ctx context.Context, login, address string, payment model.PaymentMethod) (*model.Order, error) {
	start := time.Now()

	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: delivery address is required", ErrInvalidInput)
	}
	if !payment.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, payment)
	}

	var (
		order *model.Order
		stage string
	)
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		order = nil

		stage = StageGathering
		customer, err := customerByLogin(ctx, q, login)
		if err != nil {
			return err
		}
		// Блокировка корзины не даёт второму оформлению той же корзины создать ещё один заказ.
		cart, err := q.LockActiveCart(ctx, customer.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}
		items, err := q.ListCartItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		stage = StageValidating
		demand := make(map[int64]int, len(items))
		for _, it := range items {
			demand[it.VariantID] += it.Quantity
		}
		ids := slices.Sorted(maps.Keys(demand))
		variants, err := q.LockVariants(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			v, ok := variants[id]
			if !ok {
				return fmt.Errorf("%w: variant %d", repository.ErrNotFound, id)
			}
			if v.Stock < demand[id] {
				return &StockError{VariantID: id, Label: v.Label, Requested: demand[id], Available: v.Stock}
			}
		}

		stage = StagePricing
		now := s.now()
		orderItems := make([]model.OrderItem, 0, len(items))
		for _, it := range items {
			v := variants[it.VariantID]
			product, err := q.GetProduct(ctx, v.ProductID)
			if err != nil {
				return err
			}
			if !product.Active {
				return fmt.Errorf("%w: product %d is not on sale", repository.ErrNotFound, product.ID)
			}
			price, err := pricing.DiscountedPrice(ctx, q, *product, now)
			if err != nil {
				return err
			}
			orderItems = append(orderItems, model.OrderItem{
				VariantID: v.ID,
				ProductID: product.ID,
				Quantity:  it.Quantity,
				UnitPrice: price,
			})
		}

		stage = StageCommitting
		total := model.ItemsTotal(orderItems)
		o := &model.Order{
			CustomerID:      customer.ID,
			OrderDate:       now,
			TotalPrice:      total,
			ShippingFee:     model.ShippingFee(total),
			PaymentMethod:   payment,
			Status:          model.OrderStatusPending,
			DeliveryAddress: address,
		}
		if o.ID, err = q.CreateOrder(ctx, o); err != nil {
			return err
		}

		for i := range orderItems {
			orderItems[i].OrderID = o.ID
			if orderItems[i].ID, err = q.CreateOrderItem(ctx, &orderItems[i]); err != nil {
				return err
			}
		}
		o.Items = orderItems

		for _, id := range ids {
			if err := q.DecrementStock(ctx, id, demand[id]); err != nil {
				return err
			}
		}

		h := model.OrderStatusHistory{
			OrderID:   o.ID,
			Status:    model.OrderStatusPending,
			ChangedAt: now,
			Notes:     checkoutNote,
		}
		if h.ID, err = q.AppendStatusHistory(ctx, &h); err != nil {
			return err
		}
		o.History = []model.OrderStatusHistory{h}

		if err := q.DeactivateCart(ctx, cart.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEmptyCart
			}
			return err
		}

		ev, err := events.NewOrderEvent(events.EventOrderCreated, o, checkoutNote, now)
		if err != nil {
			return err
		}
		if err := q.InsertOutboxEvent(ctx, ev); err != nil {
			return err
		}

		order = o
		return nil
	})

	s.metrics.ObserveCheckout(checkoutOutcome(err), time.Since(start))

	if err != nil {
		s.logger.Info("checkout failed",
			zap.String("login", login),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("login", login),
		zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
