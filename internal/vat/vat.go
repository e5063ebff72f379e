// Package vat models the optional VAT-number extension as a pluggable
// capability. The row projector holds a Lookup and nil-checks it before
// calling, mirroring a host plugin that may or may not be installed.
package vat

import "context"

// Lookup resolves a VAT number for a user account.
type Lookup interface {
	// VATNumber returns the VAT number registered for the user, or an
	// empty string if none is on record.
	VATNumber(ctx context.Context, userID int64) (string, error)
}
