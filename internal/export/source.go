package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Source reads license records and their related entities. Lookups return
// (nil, nil) for missing entities so the driver can skip a record without
// treating the miss as a failure.
type Source interface {
	// FetchPage returns up to limit licenses starting at offset, ordered by
	// license ID. The length of the returned slice is the pagination signal:
	// a short page means the data is exhausted.
	FetchPage(ctx context.Context, offset, limit int) ([]License, error)

	// Customer returns the customer by ID, or nil if it does not exist.
	Customer(ctx context.Context, id int64) (*Customer, error)

	// Payment returns the payment by ID, or nil if it does not exist.
	Payment(ctx context.Context, id int64) (*Payment, error)

	// CustomerAddress returns the address stored on the customer's user
	// account, or nil if none is on record.
	CustomerAddress(ctx context.Context, userID int64) (*Address, error)

	// DownloadExists reports whether the product the license covers exists.
	DownloadExists(ctx context.Context, id int64) (bool, error)
}

// NewSource probes the database schema once and returns the matching
// adapter: the modern shape keeps licenses in a dedicated relational table,
// the legacy shape scatters them across meta rows. The probe never runs
// again; per-record branching on schema version is deliberately avoided.
func NewSource(ctx context.Context, pool *pgxpool.Pool) (Source, error) {
	var reg *string
	err := pool.QueryRow(ctx, `SELECT to_regclass('edd_licenses')::text`).Scan(&reg)
	if err != nil {
		return nil, fmt.Errorf("probe edd_licenses: %w", err)
	}
	if reg != nil {
		return &modernSource{db: pool}, nil
	}
	return &legacySource{db: pool}, nil
}

// scanCustomer reads one customer row shared by both adapters.
func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.UserID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// scanPayment reads one payment row and decodes its user_info blob.
func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p    Payment
		info []byte
	)
	err := row.Scan(&p.ID, &p.CustomerID, &info)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &p.Info); err != nil {
			return nil, fmt.Errorf("payment %d user_info: %w", p.ID, err)
		}
	}
	return &p, nil
}

const customerQuery = `
	SELECT id, email, name, COALESCE(user_id, 0)
	FROM edd_customers
	WHERE id = $1`

const paymentQuery = `
	SELECT id, COALESCE(customer_id, 0), user_info
	FROM edd_payments
	WHERE id = $1`

// queryCustomerAddress reads the fallback address from the user's meta row.
func queryCustomerAddress(ctx context.Context, db DBTX, userID int64) (*Address, error) {
	var raw []byte
	err := db.QueryRow(ctx,
		`SELECT meta_value FROM user_meta WHERE user_id = $1 AND meta_key = '_edd_user_address'`,
		userID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var addr Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return nil, fmt.Errorf("user %d address meta: %w", userID, err)
	}
	return &addr, nil
}

// queryDownloadExists checks the product the license covers.
func queryDownloadExists(ctx context.Context, db DBTX, id int64) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM edd_downloads WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
