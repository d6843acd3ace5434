package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// FixtureUser inserts a user row and returns its id.
func (tdb *TestDB) FixtureUser(t *testing.T, email string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO users (id, email, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		id, email, "Test User", now,
	)
	if err != nil {
		t.Fatalf("creating fixture user %q: %v", email, err)
	}
	return id
}

// FixtureProduct inserts an active product row and returns its id. The price
// is a decimal string, e.g. "25.00".
func (tdb *TestDB) FixtureProduct(t *testing.T, name, price string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO products (id, name, price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, $4, $4)`,
		id, name, price, now,
	)
	if err != nil {
		t.Fatalf("creating fixture product %q: %v", name, err)
	}
	return id
}
