package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/pharmacy-storefront/internal/events"
	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

func TestCheckout_CreatesFrozenOrder(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	discounted, dv := f.product(t, "1000", 10)
	_, pv := f.product(t, "450.25", 3)
	f.promotion(t, 10, discounted)
	f.promotion(t, 20, discounted)
	ctx := context.Background()

	f.addToCart(t, "anna", dv[0], 2)
	f.addToCart(t, "anna", pv[0], 3)

	order, err := f.svc.Checkout(ctx, "anna", "  Lenina 1, Moscow ", model.PaymentCashOnDelivery)
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, f.now, order.OrderDate)
	assert.Equal(t, "Lenina 1, Moscow", order.DeliveryAddress)
	assert.Equal(t, model.PaymentCashOnDelivery, order.PaymentMethod)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "800.00", order.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "450.25", order.Items[1].UnitPrice.StringFixed(2))
	assert.Equal(t, "2950.75", order.TotalPrice.StringFixed(2))
	assert.True(t, order.TotalPrice.Equal(model.ItemsTotal(order.Items)))
	assert.Equal(t, "600.00", order.ShippingFee.StringFixed(2))

	require.Len(t, order.History, 1)
	assert.Equal(t, model.OrderStatusPending, order.History[0].Status)
	assert.Equal(t, checkoutNote, order.History[0].Notes)

	assert.Equal(t, 8, f.stock(t, dv[0]))
	assert.Equal(t, 0, f.stock(t, pv[0]), "stock equal to the requested quantity must reach exactly zero")

	view, err := f.svc.GetCart(ctx, "anna")
	require.NoError(t, err)
	assert.Zero(t, view.CartID, "cart must be deactivated")

	pending := f.pendingEvents(t)
	require.Len(t, pending, 1)
	assert.Equal(t, events.EventOrderCreated, pending[0].Type)
	assert.Equal(t, order.ID, pending[0].OrderID)

	stored, err := f.svc.GetOrder(ctx, "anna", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalPrice.StringFixed(2), stored.TotalPrice.StringFixed(2))
	assert.Len(t, stored.Items, 2)
}

func TestCheckout_PriceIsFrozen(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	productID, variants := f.product(t, "1000", 5)
	ctx := context.Background()

	f.addToCart(t, "anna", variants[0], 1)
	order, err := f.svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	require.NoError(t, err)

	f.promotion(t, 50, productID)

	stored, err := f.svc.GetOrder(ctx, "anna", order.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", stored.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "1000.00", stored.TotalPrice.StringFixed(2))
}

func TestCheckout_ShippingThreshold(t *testing.T) {
	tests := []struct {
		price string
		fee   string
	}{
		{price: "10000", fee: "600.00"},
		{price: "10000.01", fee: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			f := newFixture(t)
			f.customer(t, "anna")
			_, variants := f.product(t, tt.price, 1)
			f.addToCart(t, "anna", variants[0], 1)

			order, err := f.svc.Checkout(context.Background(), "anna", "addr", model.PaymentCIB)
			require.NoError(t, err)
			assert.Equal(t, tt.fee, order.ShippingFee.StringFixed(2))
		})
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "10", 5)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	assert.ErrorIs(t, err, ErrEmptyCart, "no cart at all")

	f.addToCart(t, "anna", variants[0], 1)
	require.NoError(t, f.svc.RemoveCartItem(ctx, "anna", variants[0]))

	_, err = f.svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	assert.ErrorIs(t, err, ErrEmptyCart, "cart without items")

	orders, err := f.svc.ListOrders(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.pendingEvents(t))
}

func TestCheckout_InsufficientStockIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, first := f.product(t, "10", 10)
	_, second := f.product(t, "20", 3)
	ctx := context.Background()

	f.addToCart(t, "anna", first[0], 2)
	f.addToCart(t, "anna", second[0], 3)

	// Кто-то выкупил единицу второго варианта после добавления в корзину.
	err := f.repo.InTx(ctx, func(q repository.Queries) error {
		return q.DecrementStock(ctx, second[0], 1)
	})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, second[0], stockErr.VariantID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	assert.Equal(t, 10, f.stock(t, first[0]), "lines with enough stock must not be decremented")
	assert.Equal(t, 2, f.stock(t, second[0]))

	view, err := f.svc.GetCart(ctx, "anna")
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2, "cart must stay untouched")

	orders, err := f.svc.ListOrders(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_InvalidInput(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, "anna", "   ", model.PaymentCIB)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Checkout(ctx, "anna", "addr", model.PaymentMethod("BARTER"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Checkout(ctx, "ghost", "addr", model.PaymentCIB)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// hidingQueries имитирует вариант, удалённый из каталога после добавления в корзину.
type hidingQueries struct {
	repository.Queries
	hidden int64
}

func (h hidingQueries) LockVariants(ctx context.Context, ids []int64) (map[int64]model.ProductVariant, error) {
	res, err := h.Queries.LockVariants(ctx, ids)
	delete(res, h.hidden)
	return res, err
}

func TestCheckout_DeletedVariantIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "10", 5, 5)
	ctx := context.Background()

	f.addToCart(t, "anna", variants[0], 1)
	f.addToCart(t, "anna", variants[1], 1)

	svc := NewService(&faultyRepo{
		MemoryRepository: f.repo,
		wrap: func(q repository.Queries) repository.Queries {
			return hidingQueries{Queries: q, hidden: variants[1]}
		},
	}, nil, WithClock(f.clock))

	_, err := svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 5, f.stock(t, variants[0]))
}

// failingQueries ломает последний шаг фиксации заказа.
type failingQueries struct {
	repository.Queries
	err error
}

func (f failingQueries) DeactivateCart(context.Context, int64, time.Time) error {
	return f.err
}

func TestCheckout_RollsBackOnCommitFailure(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "10", 5)
	ctx := context.Background()
	errDisk := errors.New("disk full")

	f.addToCart(t, "anna", variants[0], 2)

	svc := NewService(&faultyRepo{
		MemoryRepository: f.repo,
		wrap: func(q repository.Queries) repository.Queries {
			return failingQueries{Queries: q, err: errDisk}
		},
	}, nil, WithClock(f.clock))

	_, err := svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	require.ErrorIs(t, err, errDisk)

	assert.Equal(t, 5, f.stock(t, variants[0]))
	view, err := f.svc.GetCart(ctx, "anna")
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)
	orders, err := f.svc.ListOrders(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.pendingEvents(t))
}

func TestCheckout_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t)
	_, variants := f.product(t, "99.99", 5)
	ctx := context.Background()

	const buyers = 12
	for i := range buyers {
		login := fmt.Sprintf("buyer-%d", i)
		f.customer(t, login)
		f.addToCart(t, login, variants[0], 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, fmt.Sprintf("buyer-%d", i), "addr", model.PaymentCIB)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, rejected)
	assert.Equal(t, 0, f.stock(t, variants[0]))
}

func TestCheckout_TotalMatchesItems(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	productID, variants := f.product(t, "333.33", 10, 10)
	f.promotion(t, 7, productID)

	f.addToCart(t, "anna", variants[0], 3)
	f.addToCart(t, "anna", variants[1], 1)

	order, err := f.svc.Checkout(context.Background(), "anna", "addr", model.PaymentCIB)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range order.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, sum.Equal(order.TotalPrice), "total %s != items %s", order.TotalPrice, sum)
}

// concurrentCheckoutQueries деактивирует корзину раньше самого оформления, как это сделало бы
// параллельное оформление той же корзины, успевшее зафиксироваться первым.
type concurrentCheckoutQueries struct {
	repository.Queries
}

func (c concurrentCheckoutQueries) DeactivateCart(ctx context.Context, cartID int64, now time.Time) error {
	if err := c.Queries.DeactivateCart(ctx, cartID, now); err != nil {
		return err
	}
	return c.Queries.DeactivateCart(ctx, cartID, now)
}

func TestCheckout_CartCheckedOutConcurrently(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "10", 5)
	ctx := context.Background()

	f.addToCart(t, "anna", variants[0], 2)

	svc := NewService(&faultyRepo{
		MemoryRepository: f.repo,
		wrap: func(q repository.Queries) repository.Queries {
			return concurrentCheckoutQueries{Queries: q}
		},
	}, nil, WithClock(f.clock))

	_, err := svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	require.ErrorIs(t, err, ErrEmptyCart)

	assert.Equal(t, 5, f.stock(t, variants[0]))
	orders, err := f.svc.ListOrders(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, orders, "a cart must not produce a second order")
	assert.Empty(t, f.pendingEvents(t))
}

// withdrawnQueries показывает все товары снятыми с продажи.
type withdrawnQueries struct {
	repository.Queries
}

func (w withdrawnQueries) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := w.Queries.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Active = false
	return p, nil
}

func TestCheckout_InactiveProductIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "10", 5)
	ctx := context.Background()

	f.addToCart(t, "anna", variants[0], 1)

	svc := NewService(&faultyRepo{
		MemoryRepository: f.repo,
		wrap: func(q repository.Queries) repository.Queries {
			return withdrawnQueries{Queries: q}
		},
	}, nil, WithClock(f.clock))

	_, err := svc.Checkout(ctx, "anna", "addr", model.PaymentCIB)
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 5, f.stock(t, variants[0]))

	err = svc.AddToCart(ctx, "anna", variants[0], 1)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
