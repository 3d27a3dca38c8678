package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

const outboxBatchSize = 100

// StartOutboxRelay запускает фоновую пересылку событий outbox. Без публикатора ничего не делает.
func (s *Service) StartOutboxRelay(ctx context.Context) {
	if s.publisher == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.processOutboxBatch(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("outbox relay batch failed", zap.Error(err))
				}
			}
		}
	}()
}

// processOutboxBatch публикует ожидающие события по порядку и отмечает отправленные.
// Публикация идёт вне транзакции: пачка читается одной короткой транзакцией, а каждое
// отправленное событие отмечается своей. Первая ошибка публикации прерывает пачку,
// оставшиеся события уйдут на следующем тике.
func (s *Service) processOutboxBatch(ctx context.Context) (int, error) {
	var pending []repository.OutboxEvent
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		var err error
		pending, err = q.FetchPendingEvents(ctx, outboxBatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	var sent, failed int
	defer func() {
		s.metrics.ObserveRelay(sent, failed)
	}()

	for _, e := range pending {
		if err := s.publisher.Publish(ctx, e); err != nil {
			failed++
			s.logger.Warn("publish outbox event",
				zap.String("event_id", e.EventID),
				zap.String("type", e.Type),
				zap.Error(err),
			)
			break
		}

		if err := s.repo.InTx(ctx, func(q repository.Queries) error {
			return q.MarkEventSent(ctx, e.ID, s.now())
		}); err != nil {
			// Событие уже опубликовано и уйдёт повторно: получатели отбрасывают дубли по event_id.
			return sent, err
		}
		sent++
	}
	return sent, nil
}
