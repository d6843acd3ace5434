// Package order implements the order engine: validated, transactional
// conversion of a line-item set into a durable order, plus the status state
// machine and order history.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/marketbase/api/internal/database"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNoItems is returned when an order is created with no line items.
	ErrNoItems = errors.New("order must contain at least one item")
	// ErrInvalidQuantity is returned when a line item quantity is less than 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrNegativeAmount is returned when a line total or the order total is negative.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrPaymentMethodRequired is returned when payment_method is empty.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// ErrTotalMismatch is returned when the order total does not reconcile
	// with the sum of line totals within the tolerance.
	ErrTotalMismatch = errors.New("total amount does not match sum of line totals")
	// ErrUnknownUser is returned when the user does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownProduct is returned when a line item references a product
	// that does not exist.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrUnknownStatus is returned for status values outside the enum.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrInvalidTransition is returned when a status change is not allowed
	// by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// totalTolerance absorbs float rounding in caller-supplied amounts. A
// mismatch beyond one cent is rejected, never silently corrected.
var totalTolerance = decimal.New(1, -2)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

// validTransitions encodes pending -> paid -> shipped with cancellation only
// from pending. Shipped and cancelled are terminal.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped},
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusCancelled:
		return true
	}
	return false
}

func (s Status) canTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// LineItem is a frozen snapshot of a product, quantity and amount captured
// at order creation.
type LineItem struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	LineTotal decimal.Decimal
	Position  int32
}

// Order is a persisted order with its line items.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	TotalAmount     decimal.Decimal
	PaymentMethod   string
	ShippingAddress *string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Items           []LineItem
}

// Directory is the read-only existence-check collaborator.
type Directory interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	MissingProducts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

// Service provides business logic for order operations.
type Service struct {
	pool      *pgxpool.Pool
	directory Directory
	logger    *slog.Logger
}

// NewService creates a new order service.
func NewService(pool *pgxpool.Pool, dir Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, directory: dir, logger: logger}
}

// CreateItemInput is one line item of a new order.
type CreateItemInput struct {
	ProductID uuid.UUID
	Quantity  int32
	LineTotal decimal.Decimal
}

// CreateParams are the inputs for creating an order.
type CreateParams struct {
	UserID          uuid.UUID
	Items           []CreateItemInput
	TotalAmount     decimal.Decimal
	PaymentMethod   string
	ShippingAddress *string
}

// Create validates params and persists the order header and all line items
// in a single transaction: after it returns, either every row exists or none
// does.
func (s *Service) Create(ctx context.Context, params CreateParams) (Order, error) {
	if len(params.Items) == 0 {
		return Order{}, ErrNoItems
	}
	if strings.TrimSpace(params.PaymentMethod) == "" {
		return Order{}, ErrPaymentMethodRequired
	}
	if params.TotalAmount.IsNegative() {
		return Order{}, fmt.Errorf("%w: total_amount", ErrNegativeAmount)
	}

	sum := decimal.Zero
	productIDs := make([]uuid.UUID, 0, len(params.Items))
	for i, item := range params.Items {
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: item %d", ErrInvalidQuantity, i)
		}
		if item.LineTotal.IsNegative() {
			return Order{}, fmt.Errorf("%w: item %d", ErrNegativeAmount, i)
		}
		sum = sum.Add(item.LineTotal)
		productIDs = append(productIDs, item.ProductID)
	}
	if sum.Sub(params.TotalAmount).Abs().GreaterThan(totalTolerance) {
		return Order{}, fmt.Errorf("%w: items sum to %s, total_amount is %s",
			ErrTotalMismatch, sum, params.TotalAmount)
	}

	exists, err := s.directory.UserExists(ctx, params.UserID)
	if err != nil {
		return Order{}, fmt.Errorf("validating user: %w", err)
	}
	if !exists {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownUser, params.UserID)
	}

	missing, err := s.directory.MissingProducts(ctx, productIDs)
	if err != nil {
		return Order{}, fmt.Errorf("validating products: %w", err)
	}
	if len(missing) > 0 {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownProduct, missing[0])
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	order := Order{
		ID:              uuid.New(),
		UserID:          params.UserID,
		TotalAmount:     params.TotalAmount,
		PaymentMethod:   params.PaymentMethod,
		ShippingAddress: params.ShippingAddress,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, payment_method, shipping_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		order.ID, order.UserID, database.DecimalToNumeric(order.TotalAmount),
		order.PaymentMethod, order.ShippingAddress, order.Status, now,
	)
	if err != nil {
		return Order{}, s.classifyWriteError("creating order", err)
	}

	order.Items = make([]LineItem, 0, len(params.Items))
	for i, input := range params.Items {
		item := LineItem{
			ID:        uuid.New(),
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			LineTotal: input.LineTotal,
			Position:  int32(i),
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, line_total, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, order.ID, item.ProductID, item.Quantity,
			database.DecimalToNumeric(item.LineTotal), item.Position,
		)
		if err != nil {
			return Order{}, s.classifyWriteError(fmt.Sprintf("creating order item %d", i), err)
		}
		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("committing order creation: %w", err)
	}

	s.logger.Info("order created",
		slog.String("order_id", order.ID.String()),
		slog.String("user_id", order.UserID.String()),
		slog.String("total_amount", order.TotalAmount.String()),
		slog.Int("items", len(order.Items)),
	)

	return order, nil
}

// classifyWriteError maps foreign key violations raced in under the
// directory checks to the matching referential error; anything else stays a
// storage fault with the driver message intact.
func (s *Service) classifyWriteError(op string, err error) error {
	if constraint, ok := database.ForeignKeyConstraint(err); ok {
		if strings.Contains(constraint, "user_id") {
			return fmt.Errorf("%w: %s", ErrUnknownUser, constraint)
		}
		return fmt.Errorf("%w: %s", ErrUnknownProduct, constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const orderColumns = `id, user_id, total_amount, payment_method, shipping_address, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o     Order
		total pgtype.Numeric
	)
	err := row.Scan(&o.ID, &o.UserID, &total, &o.PaymentMethod, &o.ShippingAddress,
		&o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.TotalAmount = database.NumericToDecimal(total)
	return o, nil
}

// Get returns a single order with its line items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	order, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("getting order %s: %w", id, err)
	}

	itemsByOrder, err := s.loadItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return Order{}, err
	}
	order.Items = itemsByOrder[order.ID]
	return order, nil
}

// ListByUser returns a user's orders, newest first, each with its line items.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	orderIDs := []uuid.UUID{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	itemsByOrder, err := s.loadItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}
	return orders, nil
}

// loadItems fetches line items for a set of orders, keyed by order id and
// ordered by their position within each order.
func (s *Service) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]LineItem, error) {
	itemsByOrder := make(map[uuid.UUID][]LineItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return itemsByOrder, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, line_total, position
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    LineItem
			orderID uuid.UUID
			total   pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.Quantity, &total, &item.Position); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		item.LineTotal = database.NumericToDecimal(total)
		itemsByOrder[orderID] = append(itemsByOrder[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	return itemsByOrder, nil
}

// UpdateStatus moves an order through the state machine. The current row is
// locked while the transition is checked so concurrent updates serialize.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus Status) (Order, error) {
	if !newStatus.valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("fetching order for status update: %w", err)
	}

	if !current.canTransitionTo(newStatus) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, newStatus)
	}

	order, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+orderColumns,
		id, newStatus, time.Now().UTC(),
	))
	if err != nil {
		return Order{}, fmt.Errorf("updating order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("committing status update: %w", err)
	}

	s.logger.Info("order status updated",
		slog.String("order_id", id.String()),
		slog.String("from_status", string(current)),
		slog.String("to_status", string(newStatus)),
	)

	itemsByOrder, err := s.loadItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return Order{}, err
	}
	order.Items = itemsByOrder[order.ID]
	return order, nil
}

// Delete removes an order and, via cascade, its line items. Deleting an id
// that no longer exists is a success.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting order: %w", err)
	}
	return nil
}
