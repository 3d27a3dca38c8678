package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

func TestAddToCart_MergesSameVariant(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "100", 10)

	f.addToCart(t, "anna", variants[0], 2)
	f.addToCart(t, "anna", variants[0], 3)

	view, err := f.svc.GetCart(context.Background(), "anna")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 5, view.Lines[0].Quantity)
	assert.Equal(t, "500.00", view.Total.StringFixed(2))
	assert.Equal(t, 10, f.stock(t, variants[0]), "adding to cart must not reserve stock")
}

func TestAddToCart_Errors(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "100", 3)
	ctx := context.Background()

	tests := []struct {
		name      string
		login     string
		variantID int64
		qty       int
		want      error
	}{
		{name: "zero quantity", login: "anna", variantID: variants[0], qty: 0, want: ErrInvalidQuantity},
		{name: "negative quantity", login: "anna", variantID: variants[0], qty: -2, want: ErrInvalidQuantity},
		{name: "unknown variant", login: "anna", variantID: 9999, qty: 1, want: repository.ErrNotFound},
		{name: "more than in stock", login: "anna", variantID: variants[0], qty: 4, want: ErrInsufficientStock},
		{name: "unknown customer", login: "ghost", variantID: variants[0], qty: 1, want: repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.AddToCart(ctx, tt.login, tt.variantID, tt.qty)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	view, err := f.svc.GetCart(ctx, "anna")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Zero(t, view.CartID, "failed additions must not create a cart")
}

func TestAddToCart_StockCheckIsPerRequest(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "100", 3)

	f.addToCart(t, "anna", variants[0], 2)
	f.addToCart(t, "anna", variants[0], 2)

	view, err := f.svc.GetCart(context.Background(), "anna")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 4, view.Lines[0].Quantity)
	assert.False(t, view.Lines[0].Available)

	var stockErr *StockError
	_, err = f.svc.Checkout(context.Background(), "anna", "Main st. 1", "CIB")
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)
}

func TestGetCart_ShowsDiscountedPrices(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	productID, variants := f.product(t, "1000", 5)
	f.promotion(t, 10, productID)
	f.promotion(t, 20, productID)

	f.addToCart(t, "anna", variants[0], 2)

	view, err := f.svc.GetCart(context.Background(), "anna")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	line := view.Lines[0]
	assert.Equal(t, 20, line.DiscountPercent)
	assert.Equal(t, "800.00", line.UnitPrice.StringFixed(2))
	assert.Equal(t, "1600.00", line.Subtotal.StringFixed(2))
	assert.True(t, line.Available)
	assert.Equal(t, f.now, view.UpdatedAt)
}

func TestGetCart_NoCart(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")

	view, err := f.svc.GetCart(context.Background(), "anna")
	require.NoError(t, err)
	assert.Zero(t, view.CartID)
	assert.Empty(t, view.Lines)
	assert.True(t, view.Total.IsZero())
}

func TestUpdateAndRemoveCartItem(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "50", 10, 10)
	ctx := context.Background()

	f.addToCart(t, "anna", variants[0], 1)
	f.addToCart(t, "anna", variants[1], 1)

	require.NoError(t, f.svc.UpdateCartItem(ctx, "anna", variants[0], 7))
	assert.ErrorIs(t, f.svc.UpdateCartItem(ctx, "anna", variants[0], 11), ErrInsufficientStock)
	assert.ErrorIs(t, f.svc.UpdateCartItem(ctx, "anna", variants[0], 0), ErrInvalidQuantity)
	assert.ErrorIs(t, f.svc.UpdateCartItem(ctx, "anna", 9999, 1), repository.ErrNotFound)

	require.NoError(t, f.svc.RemoveCartItem(ctx, "anna", variants[1]))
	assert.ErrorIs(t, f.svc.RemoveCartItem(ctx, "anna", variants[1]), repository.ErrNotFound)

	view, err := f.svc.GetCart(ctx, "anna")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, variants[0], view.Lines[0].VariantID)
	assert.Equal(t, 7, view.Lines[0].Quantity)
}

func TestUpdateCartItem_WithoutCart(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "anna")
	_, variants := f.product(t, "50", 10)

	err := f.svc.UpdateCartItem(context.Background(), "anna", variants[0], 1)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
