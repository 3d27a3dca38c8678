package service

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCart возвращается при оформлении без активной корзины или с пустой корзиной.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidQuantity возвращается для количества меньше единицы.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInsufficientStock возвращается, если остатка варианта не хватает. Конкретный вариант описывает StockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StockError описывает вариант, которого не хватает для строки корзины.
type StockError struct {
	VariantID int64
	Label     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s for variant %d (%s): requested %d, available %d",
		ErrInsufficientStock, e.VariantID, e.Label, e.Requested, e.Available)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrInsufficientStock).
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
