package export

import (
	"context"
	"fmt"
	"time"
)

// modernSource reads the newer schema: one row per license in edd_licenses
// with direct foreign keys to download, customer and payment.
type modernSource struct {
	db DBTX
}

func (s *modernSource) FetchPage(ctx context.Context, offset, limit int) ([]License, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id,
		       COALESCE(download_id, 0),
		       COALESCE(customer_id, 0),
		       COALESCE(payment_id, 0),
		       license_key,
		       date_created,
		       COALESCE(activation_limit, 0),
		       is_lifetime,
		       expiration
		FROM edd_licenses
		ORDER BY id
		OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch license page at %d: %w", offset, err)
	}
	defer rows.Close()

	var page []License
	for rows.Next() {
		var (
			lic     License
			expires *time.Time
		)
		err := rows.Scan(
			&lic.ID,
			&lic.DownloadID,
			&lic.CustomerID,
			&lic.PaymentID,
			&lic.Key,
			&lic.Created,
			&lic.ActivationLimit,
			&lic.Lifetime,
			&expires,
		)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		if expires != nil {
			lic.Expiration = *expires
		}
		page = append(page, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch license page at %d: %w", offset, err)
	}
	return page, nil
}

func (s *modernSource) Customer(ctx context.Context, id int64) (*Customer, error) {
	return scanCustomer(s.db.QueryRow(ctx, customerQuery, id))
}

func (s *modernSource) Payment(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(s.db.QueryRow(ctx, paymentQuery, id))
}

func (s *modernSource) CustomerAddress(ctx context.Context, userID int64) (*Address, error) {
	return queryCustomerAddress(ctx, s.db, userID)
}

func (s *modernSource) DownloadExists(ctx context.Context, id int64) (bool, error) {
	return queryDownloadExists(ctx, s.db, id)
}
