package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// NumericToDecimal converts a scanned pgtype.Numeric into a decimal.Decimal.
// Invalid (NULL) numerics become zero.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// DecimalToNumeric converts a decimal.Decimal into a pgtype.Numeric for
// binding as a query parameter.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// SQLSTATE 23503.
const foreignKeyViolation = "23503"

// ForeignKeyConstraint reports whether err is a foreign key violation and, if
// so, returns the name of the violated constraint. This lets callers turn a
// referential failure raced in under an explicit existence check into the
// same client error, instead of surfacing it as a storage fault.
func ForeignKeyConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
