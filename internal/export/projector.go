package export

import (
	"context"

	"github.com/licensekit/edd-export/internal/vat"
)

// Projector maps one license bundle (license + customer + payment) to one
// output row. It owns the fallback rules: address resolution order, tax-ID
// resolution order, and expiration formatting.
type Projector struct {
	source Source
	vat    vat.Lookup // nil when the VAT extension is absent
}

// NewProjector creates a projector. Pass a nil Lookup when no VAT extension
// is installed; the tax-ID fallback is then limited to payment metadata.
func NewProjector(source Source, vatLookup vat.Lookup) *Projector {
	return &Projector{source: source, vat: vatLookup}
}

// Project builds the output row with the given file index.
func (p *Projector) Project(ctx context.Context, lic License, cust *Customer, pay *Payment, index int) (Row, error) {
	row := Row{
		Index:      index,
		UserEmail:  cust.Email,
		UserName:   cust.Name,
		DownloadID: lic.DownloadID,

		LicenseCreated: lic.Created.UTC().Format(expirationFormat),
		LicenseKey:     lic.Key,
		Quantity:       quantity(lic),
		ExpiresAt:      expiresAt(lic),

		// The source never records verification, but the importing
		// platform expects the column.
		EmailVerified: false,
	}

	addr, err := p.resolveAddress(ctx, cust, pay)
	if err != nil {
		return Row{}, err
	}
	row.Address = addr

	taxID, err := p.resolveTaxID(ctx, cust, pay)
	if err != nil {
		return Row{}, err
	}
	if taxID != "" {
		row.TaxID = &taxID
	}

	return row, nil
}

// quantity returns the activation limit, or nil for unlimited licenses.
func quantity(lic License) *int {
	if lic.ActivationLimit > 0 {
		q := lic.ActivationLimit
		return &q
	}
	return nil
}

// expiresAt formats the expiration in UTC, or nil for lifetime licenses.
// The conversion is timezone-naive on purpose: the output must not depend
// on the server's configured zone.
func expiresAt(lic License) *string {
	if lic.Lifetime {
		return nil
	}
	s := lic.Expiration.UTC().Format(expirationFormat)
	return &s
}

// resolveAddress applies the fallback order: the address captured on the
// initiating payment, then the address stored on the customer's user
// account, else empty. The country code is lower-cased either way.
func (p *Projector) resolveAddress(ctx context.Context, cust *Customer, pay *Payment) (Address, error) {
	addr := pay.Info.Address
	if addr.Empty() && cust.UserID != 0 {
		stored, err := p.source.CustomerAddress(ctx, cust.UserID)
		if err != nil {
			return Address{}, err
		}
		addr = stored
	}
	if addr.Empty() {
		return Address{}, nil
	}

	out := *addr
	out.Country = lowerCountry(out.Country)
	return out, nil
}

// resolveTaxID applies the fallback order: the VAT number captured on the
// payment, then the optional VAT extension keyed by user account, else none.
func (p *Projector) resolveTaxID(ctx context.Context, cust *Customer, pay *Payment) (string, error) {
	if pay.Info.VATNumber != "" {
		return pay.Info.VATNumber, nil
	}
	if p.vat != nil && cust.UserID != 0 {
		return p.vat.VATNumber(ctx, cust.UserID)
	}
	return "", nil
}

// lowerCountry lower-cases ASCII country codes without pulling in strings
// for a two-letter field.
func lowerCountry(code string) string {
	b := []byte(code)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
