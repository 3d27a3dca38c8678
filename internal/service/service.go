// Package service реализует бизнес-логику витрины аптеки: корзину, оформление заказа и смену его статуса.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/metrics"
	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
// Все операции выполняются внутри InTx: ошибка fn откатывает транзакцию целиком.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(q repository.Queries) error) error
}

// Publisher доставляет события outbox во внешнюю систему.
type Publisher interface {
	Publish(ctx context.Context, e repository.OutboxEvent) error
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo      Repository
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics задаёт метрики сервиса.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт новый сервис. publisher может быть nil, тогда ретранслятор событий не запускается.
func NewService(repo Repository, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: publisher,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterCustomer регистрирует нового покупателя.
func (s *Service) RegisterCustomer(ctx context.Context, login, password, phone string) (int64, error) {
	c := &model.Customer{
		Login:        login,
		PasswordHash: hashPassword(login, password),
		PhoneNumber:  phone,
		CreatedAt:    s.now(),
	}

	var id int64
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		var err error
		id, err = q.CreateCustomer(ctx, c)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateCustomer проверяет логин и пароль и возвращает покупателя.
func (s *Service) AuthenticateCustomer(ctx context.Context, login, password string) (*model.Customer, error) {
	var c *model.Customer
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		var err error
		c, err = q.GetCustomerByLogin(ctx, login)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, c.PasswordHash) != 1 {
		return nil, ErrInvalidCredentials
	}

	return c, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

func customerByLogin(ctx context.Context, q repository.Queries, login string) (*model.Customer, error) {
	c, err := q.GetCustomerByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}
	return c, nil
}
