package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/pricing"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

// AddToCart добавляет вариант в активную корзину покупателя, создавая корзину при необходимости.
// Проверка остатка здесь предварительная: остаток не резервируется, окончательная проверка выполняется при оформлении.
func (s *Service) AddToCart(ctx context.Context, login string, variantID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	return s.repo.InTx(ctx, func(q repository.Queries) error {
		v, err := q.GetVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if err := requireActiveProduct(ctx, q, v.ProductID); err != nil {
			return err
		}
		if v.Stock < quantity {
			return &StockError{VariantID: v.ID, Label: v.Label, Requested: quantity, Available: v.Stock}
		}

		c, err := customerByLogin(ctx, q, login)
		if err != nil {
			return err
		}

		now := s.now()
		cart, err := q.GetOrCreateActiveCart(ctx, c.ID, now)
		if err != nil {
			return err
		}

		if _, err := q.AddCartItem(ctx, model.CartItem{
			CartID:    cart.ID,
			VariantID: v.ID,
			ProductID: v.ProductID,
			Quantity:  quantity,
		}); err != nil {
			return err
		}

		return q.TouchCart(ctx, cart.ID, now)
	})
}

// UpdateCartItem задаёт новое количество для строки корзины.
func (s *Service) UpdateCartItem(ctx context.Context, login string, variantID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	return s.repo.InTx(ctx, func(q repository.Queries) error {
		cart, err := activeCart(ctx, q, login)
		if err != nil {
			return err
		}
		if _, err := q.GetCartItem(ctx, cart.ID, variantID); err != nil {
			return err
		}

		v, err := q.GetVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if v.Stock < quantity {
			return &StockError{VariantID: v.ID, Label: v.Label, Requested: quantity, Available: v.Stock}
		}

		if err := q.SetCartItemQuantity(ctx, cart.ID, variantID, quantity); err != nil {
			return err
		}
		return q.TouchCart(ctx, cart.ID, s.now())
	})
}

// RemoveCartItem удаляет строку варианта из активной корзины.
func (s *Service) RemoveCartItem(ctx context.Context, login string, variantID int64) error {
	return s.repo.InTx(ctx, func(q repository.Queries) error {
		cart, err := activeCart(ctx, q, login)
		if err != nil {
			return err
		}
		if err := q.DeleteCartItem(ctx, cart.ID, variantID); err != nil {
			return err
		}
		return q.TouchCart(ctx, cart.ID, s.now())
	})
}

// GetCart возвращает активную корзину с текущими ценами. Без активной корзины возвращается пустое представление.
func (s *Service) GetCart(ctx context.Context, login string) (*model.CartView, error) {
	var view *model.CartView
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		view = &model.CartView{Total: decimal.Zero, Lines: []model.CartLine{}}

		c, err := customerByLogin(ctx, q, login)
		if err != nil {
			return err
		}
		cart, err := q.GetActiveCart(ctx, c.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		view.CartID = cart.ID
		view.UpdatedAt = cart.UpdatedAt

		items, err := q.ListCartItems(ctx, cart.ID)
		if err != nil {
			return err
		}

		now := s.now()
		for _, it := range items {
			line, err := cartLine(ctx, q, it, now)
			if err != nil {
				return err
			}
			view.Lines = append(view.Lines, line)
			view.Total = view.Total.Add(line.Subtotal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// cartLine собирает строку корзины. Удалённый из каталога товар или вариант показывается недоступным с нулевой ценой.
func cartLine(ctx context.Context, q repository.Queries, it model.CartItem, now time.Time) (model.CartLine, error) {
	line := model.CartLine{
		VariantID: it.VariantID,
		ProductID: it.ProductID,
		Quantity:  it.Quantity,
		UnitPrice: decimal.Zero,
		Subtotal:  decimal.Zero,
	}

	v, err := q.GetVariant(ctx, it.VariantID)
	if errors.Is(err, repository.ErrNotFound) {
		return line, nil
	}
	if err != nil {
		return line, err
	}
	p, err := q.GetProduct(ctx, v.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		return line, nil
	}
	if err != nil {
		return line, err
	}

	quote, err := pricing.GetQuote(ctx, q, *p, now)
	if err != nil {
		return line, err
	}

	line.ProductName = p.Name
	line.VariantLabel = v.Label
	line.UnitPrice = quote.UnitPrice
	line.DiscountPercent = quote.DiscountPercent
	line.Subtotal = quote.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	line.Available = p.Active && v.Stock >= it.Quantity
	return line, nil
}

func activeCart(ctx context.Context, q repository.Queries, login string) (*model.Cart, error) {
	c, err := customerByLogin(ctx, q, login)
	if err != nil {
		return nil, err
	}
	return q.LockActiveCart(ctx, c.ID)
}

// requireActiveProduct считает снятый с продажи товар отсутствующим.
func requireActiveProduct(ctx context.Context, q repository.Queries, productID int64) error {
	p, err := q.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("%w: product %d is not on sale", repository.ErrNotFound, productID)
	}
	return nil
}
