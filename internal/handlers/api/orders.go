package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketbase/api/internal/services/order"
)

// OrderHandler holds dependencies for order endpoints.
type OrderHandler struct {
	orderSvc *order.Service
	logger   *slog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orderSvc *order.Service, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{
		orderSvc: orderSvc,
		logger:   logger,
	}
}

// RegisterRoutes registers all order routes on the given mux.
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("PATCH /orders", h.UpdateStatus)
	mux.HandleFunc("DELETE /orders", h.DeleteOrder)
}

// --- JSON request/response types ---

type createOrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	Total     float64   `json:"total"`
}

type createOrderRequest struct {
	UserID          uuid.UUID                `json:"user_id"`
	Items           []createOrderItemRequest `json:"items"`
	TotalAmount     float64                  `json:"total_amount"`
	PaymentMethod   string                   `json:"payment_method"`
	ShippingAddress *string                  `json:"shipping_address"`
}

type updateStatusRequest struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type orderItemJSON struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	Total     float64   `json:"total"`
}

type orderJSON struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	TotalAmount     float64         `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress *string         `json:"shipping_address"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	Items           []orderItemJSON `json:"items"`
}

func orderToJSON(o order.Order) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemJSON{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Total:     item.LineTotal.InexactFloat64(),
		}
	}
	return orderJSON{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount.InexactFloat64(),
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339Nano),
		Items:           items,
	}
}

// --- Handlers ---

// CreateOrder handles POST /orders. The order header and every line item are
// persisted atomically; a failed request leaves nothing behind.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.UserID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "user_id is required"})
		return
	}

	items := make([]order.CreateItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.CreateItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			LineTotal: decimal.NewFromFloat(item.Total),
		}
	}

	created, err := h.orderSvc.Create(r.Context(), order.CreateParams{
		UserID:          req.UserID,
		Items:           items,
		TotalAmount:     decimal.NewFromFloat(req.TotalAmount),
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNoItems),
			errors.Is(err, order.ErrInvalidQuantity),
			errors.Is(err, order.ErrNegativeAmount),
			errors.Is(err, order.ErrPaymentMethodRequired),
			errors.Is(err, order.ErrTotalMismatch):
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		case errors.Is(err, order.ErrUnknownUser), errors.Is(err, order.ErrUnknownProduct):
			writeJSON(w, http.StatusUnprocessableEntity, errorJSON{Error: err.Error()})
		default:
			writeStorageError(w, h.logger, "failed to create order", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, successJSON{
		Success: true,
		Data:    orderToJSON(created),
		Message: "Order created successfully",
	})
}

// ListOrders handles GET /orders?user_id= and GET /orders?id=. Both return a
// {data: [...]} envelope; history is newest first.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if rawID := r.URL.Query().Get("id"); rawID != "" {
		orderID, err := uuid.Parse(rawID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid order id"})
			return
		}
		o, err := h.orderSvc.Get(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
				return
			}
			writeStorageError(w, h.logger, "failed to get order", err)
			return
		}
		writeJSON(w, http.StatusOK, dataJSON{Data: []orderJSON{orderToJSON(o)}})
		return
	}

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "user_id or id is required"})
		return
	}

	orders, err := h.orderSvc.ListByUser(r.Context(), userID)
	if err != nil {
		writeStorageError(w, h.logger, "failed to list orders", err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i, o := range orders {
		out[i] = orderToJSON(o)
	}
	writeJSON(w, http.StatusOK, dataJSON{Data: out})
}

// UpdateStatus handles PATCH /orders.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.ID == uuid.Nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "id and status are required"})
		return
	}

	o, err := h.orderSvc.UpdateStatus(r.Context(), req.ID, order.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, order.ErrUnknownStatus):
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		case errors.Is(err, order.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		case errors.Is(err, order.ErrInvalidTransition):
			writeJSON(w, http.StatusConflict, errorJSON{Error: err.Error()})
		default:
			writeStorageError(w, h.logger, "failed to update order status", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, dataJSON{Data: orderToJSON(o)})
}

// DeleteOrder handles DELETE /orders?id=. Idempotent like cart removal.
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "id is required"})
		return
	}

	if err := h.orderSvc.Delete(r.Context(), orderID); err != nil {
		writeStorageError(w, h.logger, "failed to delete order", err)
		return
	}

	writeJSON(w, http.StatusOK, successJSON{Success: true})
}
