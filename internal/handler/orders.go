package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
)

type orderItemResponse struct {
	VariantID int64  `json:"variantId"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

type statusHistoryResponse struct {
	Status    string `json:"status"`
	ChangedAt string `json:"changedAt"`
	Notes     string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID              int64                   `json:"id"`
	OrderDate       string                  `json:"orderDate"`
	Status          string                  `json:"status"`
	TotalPrice      string                  `json:"totalPrice"`
	ShippingFee     string                  `json:"shippingFee"`
	PaymentMethod   string                  `json:"paymentMethod"`
	DeliveryAddress string                  `json:"deliveryAddress"`
	TrackingNumber  string                  `json:"trackingNumber,omitempty"`
	Items           []orderItemResponse     `json:"items,omitempty"`
	History         []statusHistoryResponse `json:"history,omitempty"`
}

func newOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderDate:       o.OrderDate.Format(time.RFC3339),
		Status:          string(o.Status),
		TotalPrice:      o.TotalPrice.StringFixed(2),
		ShippingFee:     o.ShippingFee.StringFixed(2),
		PaymentMethod:   string(o.PaymentMethod),
		DeliveryAddress: o.DeliveryAddress,
		TrackingNumber:  o.TrackingNumber,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Subtotal:  it.Subtotal().StringFixed(2),
		})
	}
	for _, hist := range o.History {
		resp.History = append(resp.History, statusHistoryResponse{
			Status:    string(hist.Status),
			ChangedAt: hist.ChangedAt.Format(time.RFC3339),
			Notes:     hist.Notes,
		})
	}
	return resp
}

type checkoutRequest struct {
	Address       string `json:"address"`
	PaymentMethod string `json:"paymentMethod"`
}

// Checkout оформляет заказ из активной корзины текущего покупателя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.Checkout(r.Context(), login, req.Address, model.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.writeError(w, err, "checkout", zap.String("login", login))
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

// GetOrders возвращает список заказов текущего покупателя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), login)
	if err != nil {
		h.writeError(w, err, "list orders", zap.String("login", login))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ текущего покупателя с позициями и историей статусов.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), login, orderID)
	if err != nil {
		h.writeError(w, err, "get order", zap.String("login", login), zap.Int64("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// CancelOrder отменяет заказ по запросу покупателя.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	login, ok := currentLogin(w, r)
	if !ok {
		return
	}

	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), login, orderID)
	if err != nil {
		h.writeError(w, err, "cancel order", zap.String("login", login), zap.Int64("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

type statusRequest struct {
	Status         string `json:"status"`
	Notes          string `json:"notes"`
	TrackingNumber string `json:"trackingNumber"`
}

// ChangeOrderStatus переводит заказ в новый статус. Доступно только администратору.
func (h *Handler) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := model.OrderStatus(req.Status)
	if !status.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.ChangeOrderStatus(r.Context(), orderID, status, req.Notes, req.TrackingNumber)
	if err != nil {
		h.writeError(w, err, "change order status", zap.Int64("orderID", orderID), zap.String("status", req.Status))
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}
