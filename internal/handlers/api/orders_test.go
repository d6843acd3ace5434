package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type orderItemResp struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	Total     float64 `json:"total"`
}

type orderResp struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	TotalAmount   float64         `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	Items         []orderItemResp `json:"items"`
}

func postOrder(t *testing.T, mux *http.ServeMux, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(raw)))
	return rr
}

func decodeCreated(t *testing.T, rr *httptest.ResponseRecorder) orderResp {
	t.Helper()
	var resp struct {
		Success bool      `json:"success"`
		Data    orderResp `json:"data"`
		Message string    `json:"message"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v\nbody: %s", err, rr.Body.String())
	}
	if !resp.Success {
		t.Fatalf("expected success envelope, got %s", rr.Body.String())
	}
	return resp.Data
}

// --------------------------------------------------------------------------
// POST /orders
// --------------------------------------------------------------------------

func TestCreateOrder(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	rr := postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 2, "total": 100.00},
		},
		"total_amount":   100.00,
		"payment_method": "credit_card",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200\nbody: %s", rr.Code, rr.Body.String())
	}

	created := decodeCreated(t, rr)
	if created.Status != "pending" {
		t.Errorf("status: got %q, want pending", created.Status)
	}
	if created.TotalAmount != 100.00 {
		t.Errorf("total_amount: got %v, want 100.00", created.TotalAmount)
	}
	if len(created.Items) != 1 || created.Items[0].ProductID != productID.String() {
		t.Errorf("items: %+v", created.Items)
	}
}

func TestCreateOrder_TotalMismatch(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	rr := postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 2, "total": 100.00},
		},
		"total_amount":   999.00,
		"payment_method": "credit_card",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400\nbody: %s", rr.Code, rr.Body.String())
	}

	// A failed create leaves order history unchanged.
	listRR := httptest.NewRecorder()
	mux.ServeHTTP(listRR, httptest.NewRequest(http.MethodGet, "/orders?user_id="+userID.String(), nil))
	if orders := decodeData[[]orderResp](t, listRR); len(orders) != 0 {
		t.Errorf("orders after failed create: got %d, want 0", len(orders))
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")

	rr := postOrder(t, mux, map[string]any{
		"user_id":        userID,
		"items":          []map[string]any{},
		"total_amount":   0.00,
		"payment_method": "credit_card",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400\nbody: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")

	rr := postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": uuid.New(), "quantity": 1, "total": 10.00},
		},
		"total_amount":   10.00,
		"payment_method": "credit_card",
	})
	// A missing reference is a client error, not a storage fault.
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422\nbody: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateOrder_UnknownUser(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	rr := postOrder(t, mux, map[string]any{
		"user_id": uuid.New(),
		"items": []map[string]any{
			{"product_id": productID, "quantity": 1, "total": 50.00},
		},
		"total_amount":   50.00,
		"payment_method": "credit_card",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422\nbody: %s", rr.Code, rr.Body.String())
	}
}

// --------------------------------------------------------------------------
// GET /orders
// --------------------------------------------------------------------------

func TestListOrders(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	created := decodeCreated(t, postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 1, "total": 50.00},
		},
		"total_amount":   50.00,
		"payment_method": "wallet",
	}))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?user_id="+userID.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200\nbody: %s", rr.Code, rr.Body.String())
	}

	orders := decodeData[[]orderResp](t, rr)
	if len(orders) != 1 {
		t.Fatalf("orders: got %d, want 1", len(orders))
	}
	if orders[0].ID != created.ID {
		t.Errorf("order id: got %q, want %q", orders[0].ID, created.ID)
	}
	if orders[0].PaymentMethod != "wallet" {
		t.Errorf("payment method: got %q, want wallet", orders[0].PaymentMethod)
	}
}

func TestGetOrderByID(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	created := decodeCreated(t, postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 1, "total": 50.00},
		},
		"total_amount":   50.00,
		"payment_method": "credit_card",
	}))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?id="+created.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200\nbody: %s", rr.Code, rr.Body.String())
	}

	orders := decodeData[[]orderResp](t, rr)
	if len(orders) != 1 || orders[0].ID != created.ID {
		t.Errorf("orders: %+v", orders)
	}
}

func TestGetOrderByID_NotFound(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?id="+uuid.New().String(), nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --------------------------------------------------------------------------
// PATCH /orders
// --------------------------------------------------------------------------

func TestUpdateOrderStatus(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	created := decodeCreated(t, postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 1, "total": 50.00},
		},
		"total_amount":   50.00,
		"payment_method": "credit_card",
	}))

	body, _ := json.Marshal(map[string]any{"id": created.ID, "status": "paid"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/orders", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200\nbody: %s", rr.Code, rr.Body.String())
	}

	if updated := decodeData[orderResp](t, rr); updated.Status != "paid" {
		t.Errorf("status: got %q, want paid", updated.Status)
	}
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	created := decodeCreated(t, postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 1, "total": 50.00},
		},
		"total_amount":   50.00,
		"payment_method": "credit_card",
	}))

	// pending cannot skip straight to shipped.
	body, _ := json.Marshal(map[string]any{"id": created.ID, "status": "shipped"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/orders", bytes.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409\nbody: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	body, _ := json.Marshal(map[string]any{"id": uuid.New(), "status": "refunded"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/orders", bytes.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400\nbody: %s", rr.Code, rr.Body.String())
	}
}

// --------------------------------------------------------------------------
// DELETE /orders
// --------------------------------------------------------------------------

func TestDeleteOrder_Idempotent(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	created := decodeCreated(t, postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 1, "total": 50.00},
		},
		"total_amount":   50.00,
		"payment_method": "credit_card",
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/orders?id="+created.ID, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("delete %d: status %d, want 200\nbody: %s", i+1, rr.Code, rr.Body.String())
		}
	}
}

// --------------------------------------------------------------------------
// End to end
// --------------------------------------------------------------------------

// TestCartToOrderFlow walks the storefront path: add an item, add it again
// to merge, bump the quantity, then place the order.
func TestCartToOrderFlow(t *testing.T) {
	testDB.Truncate(t)
	mux := newMux()

	userID := testDB.FixtureUser(t, "u1@example.com")
	productID := testDB.FixtureProduct(t, "Widget", "50.00")

	item := decodeData[cartItemResp](t, postCart(t, mux, map[string]any{
		"user_id": userID, "product_id": productID, "quantity": 1,
	}))
	if item.Quantity != 1 {
		t.Fatalf("quantity after first add: got %d, want 1", item.Quantity)
	}

	item = decodeData[cartItemResp](t, postCart(t, mux, map[string]any{
		"user_id": userID, "product_id": productID, "quantity": 2,
	}))
	if item.Quantity != 3 {
		t.Fatalf("quantity after merge: got %d, want 3", item.Quantity)
	}

	body, _ := json.Marshal(map[string]any{"id": item.ID, "quantity": 5})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/cart", bytes.NewReader(body)))
	item = decodeData[cartItemResp](t, rr)
	if item.Quantity != 5 {
		t.Fatalf("quantity after update: got %d, want 5", item.Quantity)
	}

	created := decodeCreated(t, postOrder(t, mux, map[string]any{
		"user_id": userID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 5, "total": 250.00},
		},
		"total_amount":   250.00,
		"payment_method": "credit_card",
	}))
	if created.Status != "pending" {
		t.Errorf("status: got %q, want pending", created.Status)
	}
	if created.TotalAmount != 250.00 {
		t.Errorf("total: got %v, want 250.00", created.TotalAmount)
	}
	if len(created.Items) != 1 || created.Items[0].Quantity != 5 {
		t.Errorf("items: %+v", created.Items)
	}
}
