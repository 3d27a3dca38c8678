// Package pricing рассчитывает цену товара с учётом действующих акций.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
)

// PromotionFinder возвращает акции, действующие для товара в момент at.
type PromotionFinder interface {
	FindActivePromotions(ctx context.Context, productID int64, at time.Time) ([]model.Promotion, error)
}

// Quote: цена товара за единицу и применённая к ней скидка.
type Quote struct {
	UnitPrice       decimal.Decimal
	DiscountPercent int
}

var hundred = decimal.NewFromInt(100)

// GetQuote находит лучшую действующую акцию для товара и применяет её к product.Price.
func GetQuote(ctx context.Context, f PromotionFinder, product model.Product, now time.Time) (Quote, error) {
	percent, err := DiscountPercent(ctx, f, product.ID, now)
	if err != nil {
		return Quote{}, err
	}
	return Quote{UnitPrice: Apply(product.Price, percent), DiscountPercent: percent}, nil
}

// DiscountedPrice возвращает цену товара после применения самой выгодной акции.
func DiscountedPrice(ctx context.Context, f PromotionFinder, product model.Product, now time.Time) (decimal.Decimal, error) {
	q, err := GetQuote(ctx, f, product, now)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.UnitPrice, nil
}

// DiscountPercent возвращает наибольший процент скидки для товара или 0, если акций нет.
func DiscountPercent(ctx context.Context, f PromotionFinder, productID int64, now time.Time) (int, error) {
	promos, err := f.FindActivePromotions(ctx, productID, now)
	if err != nil {
		return 0, fmt.Errorf("find promotions for product %d: %w", productID, err)
	}
	return BestDiscount(promos), nil
}

// BestDiscount выбирает максимальный процент среди акций.
func BestDiscount(promos []model.Promotion) int {
	best := 0
	for _, p := range promos {
		best = max(best, p.DiscountPercent)
	}
	return best
}

// Apply вычитает из цены скидку percent%, округлённую до копеек половиной вверх.
func Apply(price decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return price
	}
	discount := price.Mul(decimal.NewFromInt(int64(percent))).Div(hundred).Round(2)
	return price.Sub(discount)
}
