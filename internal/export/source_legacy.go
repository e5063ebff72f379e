package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// legacySource reads the older schema: licenses are posts whose attributes
// live in post_meta rows, and the customer is only reachable through the
// license's payments. Every relation is resolved here so the rest of the
// pipeline never sees the schema difference.
type legacySource struct {
	db DBTX
}

func (s *legacySource) FetchPage(ctx context.Context, offset, limit int) ([]License, error) {
	rows, err := s.db.Query(ctx, `
		SELECT post_id, meta_value
		FROM post_meta
		WHERE meta_key = '_edd_sl_key'
		ORDER BY post_id
		OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch legacy license page at %d: %w", offset, err)
	}

	type keyed struct {
		id  int64
		key string
	}
	var ids []keyed
	for rows.Next() {
		var k keyed
		if err := rows.Scan(&k.id, &k.key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan legacy license: %w", err)
		}
		ids = append(ids, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch legacy license page at %d: %w", offset, err)
	}

	// Resolve each license's relations with follow-up lookups. A license
	// that cannot be fully resolved stays in the page with zero-valued
	// relations; the page length must reflect what was fetched.
	page := make([]License, 0, len(ids))
	for _, k := range ids {
		lic, err := s.resolveLicense(ctx, k.id, k.key)
		if err != nil {
			return nil, err
		}
		page = append(page, lic)
	}
	return page, nil
}

// resolveLicense assembles a normalized License from meta rows and the
// payment history.
func (s *legacySource) resolveLicense(ctx context.Context, id int64, key string) (License, error) {
	lic := License{ID: id, Key: key}

	downloadRaw, ok, err := s.postMeta(ctx, id, "_edd_sl_download_id")
	if err != nil {
		return License{}, err
	}
	if ok {
		lic.DownloadID, _ = strconv.ParseInt(downloadRaw, 10, 64)
	}

	paymentID, created, err := s.initialPayment(ctx, id)
	if err != nil {
		return License{}, err
	}
	lic.PaymentID = paymentID
	lic.Created = created

	if paymentID != 0 {
		err := s.db.QueryRow(ctx,
			`SELECT COALESCE(customer_id, 0) FROM edd_payments WHERE id = $1`,
			paymentID,
		).Scan(&lic.CustomerID)
		if err != nil && err != pgx.ErrNoRows {
			return License{}, fmt.Errorf("customer of payment %d: %w", paymentID, err)
		}
	}

	lic.ActivationLimit, err = s.activationLimit(ctx, id, lic.DownloadID)
	if err != nil {
		return License{}, err
	}

	if err := s.expiration(ctx, id, &lic); err != nil {
		return License{}, err
	}

	return lic, nil
}

// initialPayment finds the payment that started the license: the latest
// published payment (following its parent when it is a renewal), falling
// back to the _edd_sl_payment_id meta. The returned time is the payment's
// completion date, or its creation date if it never completed.
func (s *legacySource) initialPayment(ctx context.Context, licenseID int64) (int64, time.Time, error) {
	var (
		paymentID int64
		parentID  int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(parent_payment, 0)
		FROM edd_payments
		WHERE license_id = $1 AND status = 'publish'
		ORDER BY id DESC
		LIMIT 1`,
		licenseID,
	).Scan(&paymentID, &parentID)
	switch {
	case err == pgx.ErrNoRows:
		raw, ok, metaErr := s.postMeta(ctx, licenseID, "_edd_sl_payment_id")
		if metaErr != nil {
			return 0, time.Time{}, metaErr
		}
		if ok {
			paymentID, _ = strconv.ParseInt(raw, 10, 64)
		}
	case err != nil:
		return 0, time.Time{}, fmt.Errorf("payments of license %d: %w", licenseID, err)
	default:
		if parentID != 0 {
			paymentID = parentID
		}
	}

	if paymentID == 0 {
		return 0, time.Time{}, nil
	}

	var (
		completed *time.Time
		created   time.Time
	)
	err = s.db.QueryRow(ctx,
		`SELECT completed_date, date_created FROM edd_payments WHERE id = $1`,
		paymentID,
	).Scan(&completed, &created)
	if err == pgx.ErrNoRows {
		return paymentID, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("payment %d dates: %w", paymentID, err)
	}
	if completed != nil {
		return paymentID, *completed, nil
	}
	return paymentID, created, nil
}

// activationLimit reads the license's own limit, falling back to the
// download's default when the license does not override it.
func (s *legacySource) activationLimit(ctx context.Context, licenseID, downloadID int64) (int, error) {
	raw, ok, err := s.postMeta(ctx, licenseID, "_edd_sl_limit")
	if err != nil {
		return 0, err
	}
	if !ok && downloadID != 0 {
		raw, ok, err = s.postMeta(ctx, downloadID, "_edd_sl_limit")
		if err != nil {
			return 0, err
		}
	}
	if !ok {
		return 0, nil
	}
	limit, _ := strconv.Atoi(raw)
	return limit, nil
}

// expiration decodes the _edd_sl_expiration meta: the literal "lifetime"
// or a unix timestamp in seconds.
func (s *legacySource) expiration(ctx context.Context, licenseID int64, lic *License) error {
	raw, ok, err := s.postMeta(ctx, licenseID, "_edd_sl_expiration")
	if err != nil {
		return err
	}
	if !ok || raw == "lifetime" {
		lic.Lifetime = true
		return nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		lic.Lifetime = true
		return nil
	}
	lic.Expiration = time.Unix(secs, 0)
	return nil
}

// postMeta reads a single meta value for a post.
func (s *legacySource) postMeta(ctx context.Context, postID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx,
		`SELECT meta_value FROM post_meta WHERE post_id = $1 AND meta_key = $2`,
		postID, key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("meta %s of post %d: %w", key, postID, err)
	}
	return value, true, nil
}

func (s *legacySource) Customer(ctx context.Context, id int64) (*Customer, error) {
	return scanCustomer(s.db.QueryRow(ctx, customerQuery, id))
}

func (s *legacySource) Payment(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(s.db.QueryRow(ctx, paymentQuery, id))
}

func (s *legacySource) CustomerAddress(ctx context.Context, userID int64) (*Address, error) {
	return queryCustomerAddress(ctx, s.db, userID)
}

func (s *legacySource) DownloadExists(ctx context.Context, id int64) (bool, error) {
	return queryDownloadExists(ctx, s.db, id)
}
