package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/pharmacy-storefront/internal/metrics"
	custommiddleware "github.com/mmeshcher/pharmacy-storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestLogger(h.logger))
	r.Use(h.metrics.Middleware)
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/health", h.Health)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(h.gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/customers/register", h.Register)
		r.Post("/customers/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Put("/cart/items/{variantId}", h.UpdateCartItem)
			r.Delete("/cart/items/{variantId}", h.RemoveCartItem)

			r.Group(func(r chi.Router) {
				if h.checkoutLimiter != nil {
					r.Use(h.checkoutLimiter.Middleware)
				}
				r.Post("/checkout", h.Checkout)
			})

			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
		})

		if h.adminToken != "" {
			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireAdminToken(h.adminToken))
				r.Post("/admin/orders/{id}/status", h.ChangeOrderStatus)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
