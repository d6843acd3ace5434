package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marketbase/api/internal/services/cart"
)

// CartHandler holds dependencies for cart endpoints.
type CartHandler struct {
	cartSvc *cart.Service
	logger  *slog.Logger
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(cartSvc *cart.Service, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{
		cartSvc: cartSvc,
		logger:  logger,
	}
}

// RegisterRoutes registers all cart routes on the given mux.
func (h *CartHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /cart", h.AddItem)
	mux.HandleFunc("PATCH /cart", h.UpdateItem)
	mux.HandleFunc("GET /cart", h.ListItems)
	mux.HandleFunc("DELETE /cart", h.RemoveItem)
}

// --- JSON request/response types ---

type addItemRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	// Omitted quantity means 1, matching the storefront contract.
	Quantity *int32 `json:"quantity"`
}

type updateItemRequest struct {
	ID       uuid.UUID `json:"id"`
	Quantity int32     `json:"quantity"`
}

type cartItemJSON struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type cartItemDetailJSON struct {
	cartItemJSON
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	ImageURL    *string `json:"image_url"`
}

func cartItemToJSON(item cart.Item) cartItemJSON {
	return cartItemJSON{
		ID:        item.ID,
		UserID:    item.UserID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: item.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// --- Handlers ---

// AddItem handles POST /cart. Adding a product already in the cart merges
// into the existing row.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.UserID == uuid.Nil || req.ProductID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "user_id and product_id are required"})
		return
	}

	quantity := int32(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	item, err := h.cartSvc.AddItem(r.Context(), req.UserID, req.ProductID, quantity)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrInvalidQuantity):
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		case errors.Is(err, cart.ErrUnknownReference):
			writeJSON(w, http.StatusUnprocessableEntity, errorJSON{Error: err.Error()})
		default:
			writeStorageError(w, h.logger, "failed to add cart item", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, dataJSON{Data: cartItemToJSON(item)})
}

// UpdateItem handles PATCH /cart. The quantity replaces the stored value; it
// does not merge.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.ID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "id is required"})
		return
	}

	item, err := h.cartSvc.UpdateQuantity(r.Context(), req.ID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrInvalidQuantity):
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		case errors.Is(err, cart.ErrItemNotFound):
			writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		default:
			writeStorageError(w, h.logger, "failed to update cart item", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, dataJSON{Data: cartItemToJSON(item)})
}

// ListItems handles GET /cart?user_id=
func (h *CartHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "user_id is required"})
		return
	}

	items, err := h.cartSvc.ListItems(r.Context(), userID)
	if err != nil {
		writeStorageError(w, h.logger, "failed to list cart items", err)
		return
	}

	out := make([]cartItemDetailJSON, len(items))
	for i, item := range items {
		out[i] = cartItemDetailJSON{
			cartItemJSON: cartItemToJSON(item.Item),
			ProductName:  item.ProductName,
			UnitPrice:    item.UnitPrice.InexactFloat64(),
			ImageURL:     item.ImageURL,
		}
	}

	writeJSON(w, http.StatusOK, dataJSON{Data: out})
}

// RemoveItem handles DELETE /cart?id=. Removal is idempotent: deleting an
// id that is already gone still succeeds.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "id is required"})
		return
	}

	if err := h.cartSvc.RemoveItem(r.Context(), itemID); err != nil {
		writeStorageError(w, h.logger, "failed to remove cart item", err)
		return
	}

	writeJSON(w, http.StatusOK, successJSON{Success: true})
}
