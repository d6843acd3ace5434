// Package cart implements the cart store: one line item per (user, product)
// pair, merged on repeated adds.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/marketbase/api/internal/database"
)

var (
	// ErrItemNotFound is returned when a cart item does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned when quantity is less than 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrUnknownReference is returned when the referenced user or product
	// does not exist in the directory tables.
	ErrUnknownReference = errors.New("unknown user or product reference")
)

// Item is a single cart line item.
type Item struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemDetail is a cart item joined with the product fields the storefront
// needs to render it.
type ItemDetail struct {
	Item
	ProductName string
	UnitPrice   decimal.Decimal
	ImageURL    *string
}

// Service provides business logic for cart operations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new cart service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

const itemColumns = `id, user_id, product_id, quantity, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// AddItem adds a product to a user's cart. If a line item for the pair
// already exists its quantity is incremented instead; the unique constraint
// plus the atomic increment serialize concurrent adds, so two adds of N each
// always land at 2N. updated_at is refreshed on both paths.
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int32) (Item, error) {
	if quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT ON CONSTRAINT cart_items_user_product_key
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity,
		              updated_at = EXCLUDED.updated_at
		RETURNING `+itemColumns,
		uuid.New(), userID, productID, quantity, now,
	)

	item, err := scanItem(row)
	if err != nil {
		if constraint, ok := database.ForeignKeyConstraint(err); ok {
			return Item{}, fmt.Errorf("%w: %s", ErrUnknownReference, constraint)
		}
		return Item{}, fmt.Errorf("adding cart item: %w", err)
	}
	return item, nil
}

// UpdateQuantity replaces a cart item's quantity and refreshes updated_at.
// Quantities below 1 are rejected; removal is a separate operation.
func (s *Service) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int32) (Item, error) {
	if quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE cart_items
		SET quantity = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+itemColumns,
		itemID, quantity, time.Now().UTC(),
	)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, fmt.Errorf("updating cart item quantity: %w", err)
	}
	return item, nil
}

// ListItems returns all of a user's cart items with product details. It has
// no side effects and is safe to call repeatedly.
func (s *Service) ListItems(ctx context.Context, userID uuid.UUID) ([]ItemDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,
		       p.name, p.price, p.image_url
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	defer rows.Close()

	items := []ItemDetail{}
	for rows.Next() {
		var (
			d     ItemDetail
			price pgtype.Numeric
		)
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.ProductID, &d.Quantity, &d.CreatedAt, &d.UpdatedAt,
			&d.ProductName, &price, &d.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		d.UnitPrice = database.NumericToDecimal(price)
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return items, nil
}

// RemoveItem deletes a cart item. Removing an id that no longer exists is a
// success, so duplicate cleanup calls are harmless.
func (s *Service) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
		return fmt.Errorf("removing cart item: %w", err)
	}
	return nil
}

// Clear removes every cart item for a user. Order placement does not call
// this implicitly; the caller decides when the cart is done.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}
