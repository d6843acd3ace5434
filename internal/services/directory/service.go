// Package directory exposes read-only existence checks against the user and
// product reference tables. Account and catalog management live in other
// services; everything here is a lookup.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service answers whether users and products exist.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new directory service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

// UserExists reports whether a user row exists.
func (s *Service) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking user %s: %w", id, err)
	}
	return exists, nil
}

// ProductExists reports whether a product row exists.
func (s *Service) ProductExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking product %s: %w", id, err)
	}
	return exists, nil
}

// MissingProducts returns the subset of ids with no product row, in no
// particular order. Duplicate ids are checked once.
func (s *Service) MissingProducts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("checking products: %w", err)
	}
	defer rows.Close()

	found := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning product id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checking products: %w", err)
	}

	var missing []uuid.UUID
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !found[id] && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	return missing, nil
}
