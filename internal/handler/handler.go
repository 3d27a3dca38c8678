// Package handler содержит HTTP-обработчики API витрины аптеки.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/metrics"
	"github.com/mmeshcher/pharmacy-storefront/internal/middleware"
	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
	"github.com/mmeshcher/pharmacy-storefront/internal/service"
	"github.com/mmeshcher/pharmacy-storefront/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCustomer(ctx context.Context, login, password, phone string) (int64, error)
	AuthenticateCustomer(ctx context.Context, login, password string) (*model.Customer, error)

	GetCart(ctx context.Context, login string) (*model.CartView, error)
	AddToCart(ctx context.Context, login string, variantID int64, quantity int) error
	UpdateCartItem(ctx context.Context, login string, variantID int64, quantity int) error
	RemoveCartItem(ctx context.Context, login string, variantID int64) error

	Checkout(ctx context.Context, login, address string, payment model.PaymentMethod) (*model.Order, error)
	ListOrders(ctx context.Context, login string) ([]model.Order, error)
	GetOrder(ctx context.Context, login string, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, login string, orderID int64) (*model.Order, error)
	ChangeOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, notes, trackingNumber string) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service         Service
	logger          *zap.Logger
	authMiddleware  *middleware.AuthMiddleware
	metrics         *metrics.Metrics
	gatherer        prometheus.Gatherer
	checkoutLimiter *middleware.RateLimiter
	adminToken      string
}

// Option настраивает Handler.
type Option func(*Handler)

// WithMetrics включает сбор HTTP-метрик и маршрут /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithCheckoutLimiter ограничивает частоту оформления заказов.
func WithCheckoutLimiter(l *middleware.RateLimiter) Option {
	return func(h *Handler) {
		h.checkoutLimiter = l
	}
}

// WithAdminToken включает административные маршруты, защищённые токеном.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type registerRequest struct {
	Login       string `json:"login"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !validation.IsValidLogin(req.Login) || !validation.IsValidPassword(req.Password) ||
		!validation.IsValidPhoneNumber(req.PhoneNumber) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if _, err := h.service.RegisterCustomer(r.Context(), req.Login, req.Password, req.PhoneNumber); err != nil {
		h.writeError(w, err, "register customer", zap.String("login", req.Login))
		return
	}

	h.setCookie(w, req.Login)
}

// Login выполняет аутентификацию покупателя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customer, err := h.service.AuthenticateCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "login customer", zap.String("login", req.Login))
		return
	}

	h.setCookie(w, customer.Login)
}

func (h *Handler) setCookie(w http.ResponseWriter, login string) {
	if err := h.authMiddleware.SetAuthCookie(w, login); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Health отвечает 200, пока процесс обслуживает запросы.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor сопоставляет ошибку бизнес-логики HTTP-статусу. 0 означает непредвиденную ошибку.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, repository.ErrCustomerExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return 0
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	VariantID int64  `json:"variantId,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	status := statusFor(err)
	if status == 0 {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := errorResponse{Error: err.Error()}
	var stockErr *service.StockError
	if errors.As(err, &stockErr) {
		resp.VariantID = stockErr.VariantID
		resp.Requested = stockErr.Requested
		resp.Available = &stockErr.Available
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
