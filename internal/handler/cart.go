package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/middleware"
	"github.com/mmeshcher/pharmacy-storefront/internal/model"
)

type cartLineResponse struct {
	VariantID       int64  `json:"variantId"`
	ProductID       int64  `json:"productId"`
	ProductName     string `json:"productName"`
	VariantLabel    string `json:"variantLabel"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unitPrice"`
	DiscountPercent int    `json:"discountPercent"`
	Subtotal        string `json:"subtotal"`
	Available       bool   `json:"available"`
}

type cartResponse struct {
	CartID    int64              `json:"cartId,omitempty"`
	Items     []cartLineResponse `json:"items"`
	Total     string             `json:"total"`
	UpdatedAt string             `json:"updatedAt,omitempty"`
}

func newCartResponse(v *model.CartView) cartResponse {
	resp := cartResponse{
		CartID: v.CartID,
		Items:  make([]cartLineResponse, 0, len(v.Lines)),
		Total:  v.Total.StringFixed(2),
	}
	if !v.UpdatedAt.IsZero() {
		resp.UpdatedAt = v.UpdatedAt.Format(time.RFC3339)
	}
	for _, l := range v.Lines {
		resp.Items = append(resp.Items, cartLineResponse{
			VariantID:       l.VariantID,
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			VariantLabel:    l.VariantLabel,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice.StringFixed(2),
			DiscountPercent: l.DiscountPercent,
			Subtotal:        l.Subtotal.StringFixed(2),
			Available:       l.Available,
		})
	}
	return resp
}

// GetCart возвращает активную корзину текущего покупателя с актуальными ценами.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetCart(r.Context(), login)
	if err != nil {
		h.writeError(w, err, "get cart", zap.String("login", login))
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(view))
}

type addItemRequest struct {
	VariantID int64 `json:"variantId"`
	Quantity  int   `json:"quantity"`
}

// AddCartItem добавляет вариант товара в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.AddToCart(r.Context(), login, req.VariantID, req.Quantity); err != nil {
		h.writeError(w, err, "add to cart", zap.String("login", login), zap.Int64("variantID", req.VariantID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem задаёт количество варианта в корзине.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	variantID, ok := pathID(w, r, "variantId")
	if !ok {
		return
	}

	var req updateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateCartItem(r.Context(), login, variantID, req.Quantity); err != nil {
		h.writeError(w, err, "update cart item", zap.String("login", login), zap.Int64("variantID", variantID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveCartItem удаляет вариант из корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	variantID, ok := pathID(w, r, "variantId")
	if !ok {
		return
	}

	if err := h.service.RemoveCartItem(r.Context(), login, variantID); err != nil {
		h.writeError(w, err, "remove cart item", zap.String("login", login), zap.Int64("variantID", variantID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func currentLogin(w http.ResponseWriter, r *http.Request) (string, bool) {
	login, ok := middleware.GetLoginFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return login, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
