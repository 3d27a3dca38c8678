package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/events"
	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

const cancelNote = "cancelled by customer"

// ChangeOrderStatus переводит заказ в новый статус и добавляет запись в журнал.
// Пустой trackingNumber оставляет прежний трек-номер.
func (s *Service) ChangeOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, notes, trackingNumber string) (*model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	var res *model.Order
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		o, err := q.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		res, err = s.transition(ctx, q, o, status, notes, trackingNumber)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("status", string(status)),
	)
	return res, nil
}

// CancelOrder отменяет заказ покупателя, если текущий статус это допускает.
// Чужой заказ для покупателя не существует.
func (s *Service) CancelOrder(ctx context.Context, login string, orderID int64) (*model.Order, error) {
	var res *model.Order
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		c, err := customerByLogin(ctx, q, login)
		if err != nil {
			return err
		}
		o, err := q.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CustomerID != c.ID {
			return fmt.Errorf("%w: order %d", repository.ErrNotFound, orderID)
		}
		res, err = s.transition(ctx, q, o, model.OrderStatusCancelled, cancelNote, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", zap.String("login", login), zap.Int64("order_id", orderID))
	return res, nil
}

// transition меняет статус заблокированного заказа. Статус заказа и последняя запись журнала
// пишутся в одной транзакции и всегда совпадают.
func (s *Service) transition(ctx context.Context, q repository.Queries, o *model.Order, status model.OrderStatus, notes, trackingNumber string) (*model.Order, error) {
	if !o.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
	}
	if trackingNumber == "" {
		trackingNumber = o.TrackingNumber
	}

	now := s.now()
	if err := q.UpdateOrderStatus(ctx, o.ID, status, trackingNumber); err != nil {
		return nil, err
	}
	if _, err := q.AppendStatusHistory(ctx, &model.OrderStatusHistory{
		OrderID:   o.ID,
		Status:    status,
		ChangedAt: now,
		Notes:     notes,
	}); err != nil {
		return nil, err
	}

	full, err := q.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	ev, err := events.NewOrderEvent(events.EventOrderStatusChanged, full, notes, now)
	if err != nil {
		return nil, err
	}
	if err := q.InsertOutboxEvent(ctx, ev); err != nil {
		return nil, err
	}
	return full, nil
}

// GetOrder возвращает заказ покупателя с позициями и журналом статусов.
func (s *Service) GetOrder(ctx context.Context, login string, orderID int64) (*model.Order, error) {
	var res *model.Order
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		c, err := customerByLogin(ctx, q, login)
		if err != nil {
			return err
		}
		o, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CustomerID != c.ID {
			return fmt.Errorf("%w: order %d", repository.ErrNotFound, orderID)
		}
		res = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListOrders возвращает заказы покупателя, начиная с последнего.
func (s *Service) ListOrders(ctx context.Context, login string) ([]model.Order, error) {
	var res []model.Order
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		c, err := customerByLogin(ctx, q, login)
		if err != nil {
			return err
		}
		res, err = q.ListOrdersByCustomer(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
