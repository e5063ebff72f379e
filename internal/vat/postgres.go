package vat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLookup reads VAT numbers from the vat_numbers table maintained by
// the VAT extension. Construct it through Detect so the capability is only
// wired when the extension's table actually exists.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

// Detect probes for the VAT extension's table and returns a PostgresLookup
// if present, or nil if the extension is not installed. The probe runs once
// at startup; callers keep the nil and skip VAT lookups entirely.
func Detect(ctx context.Context, pool *pgxpool.Pool) (*PostgresLookup, error) {
	var reg *string
	err := pool.QueryRow(ctx, `SELECT to_regclass('vat_numbers')::text`).Scan(&reg)
	if err != nil {
		return nil, fmt.Errorf("probe vat_numbers: %w", err)
	}
	if reg == nil {
		return nil, nil
	}
	return &PostgresLookup{pool: pool}, nil
}

// VATNumber implements Lookup.
func (l *PostgresLookup) VATNumber(ctx context.Context, userID int64) (string, error) {
	var vatNumber string
	err := l.pool.QueryRow(ctx,
		`SELECT vat_number FROM vat_numbers WHERE user_id = $1`,
		userID,
	).Scan(&vatNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("vat number for user %d: %w", userID, err)
	}
	return vatNumber, nil
}
