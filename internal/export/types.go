package export

import (
	"strconv"
	"time"
)

const (
	// DefaultBatchSize is the number of licenses processed per batch when
	// the trigger request does not carry a usable limit.
	DefaultBatchSize = 500

	// MaxBatchSize caps client-supplied limits regardless of their value.
	MaxBatchSize = 500

	// TokenParam is the query parameter carrying the correlation token.
	// Its absence marks a request as "start a new export".
	TokenParam = "token"

	// OffsetParam and LimitParam carry the batch cursor.
	OffsetParam = "offset"
	LimitParam  = "limit"

	// expirationFormat renders license expirations, always in UTC.
	expirationFormat = "2006-01-02 15:04:05"
)

// Header is the fixed output schema. Column order is part of the contract
// with the importing platform and must not change.
var Header = []string{
	"index",

	// User.
	"user_email",
	"user_name",
	"is_email_verified",

	// License.
	"license_created",
	"license_key",
	"license_quantity",
	"license_expires_at",

	// Billing.
	"business_name",
	"website_url",
	"tax_id",
	"address_street_1",
	"address_street_2",
	"address_city",
	"address_country_code",
	"address_state",
	"address_zip",

	// Product.
	"download_id",
}

// License is the normalized record both source adapters produce. Relations
// that could not be resolved are left zero-valued; the driver skips such
// records without dropping them from the fetched count.
type License struct {
	ID         int64
	DownloadID int64
	CustomerID int64
	PaymentID  int64

	Key             string
	Created         time.Time
	ActivationLimit int

	// Lifetime licenses never expire; Expiration is meaningless when set.
	Lifetime   bool
	Expiration time.Time
}

// Customer is the account a license belongs to. UserID is zero when the
// customer has no linked user account.
type Customer struct {
	ID     int64
	Email  string
	Name   string
	UserID int64
}

// Payment is the initiating payment of a license, with the buyer-supplied
// metadata captured at checkout.
type Payment struct {
	ID         int64
	CustomerID int64
	Info       PaymentInfo
}

// PaymentInfo is the user_info blob stored on a payment.
type PaymentInfo struct {
	Address   *Address `json:"address,omitempty"`
	VATNumber string   `json:"vat_number,omitempty"`
}

// Address holds billing address sub-fields; each is independently optional.
type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

// Empty reports whether no sub-field is set. A nil address is empty.
func (a *Address) Empty() bool {
	if a == nil {
		return true
	}
	return a.Line1 == "" && a.Line2 == "" && a.City == "" &&
		a.State == "" && a.Country == "" && a.Zip == ""
}

// Row is one projected output record. Nullable columns are pointers; nil
// renders as an empty CSV field.
type Row struct {
	Index int

	UserEmail     string
	UserName      string
	EmailVerified bool

	LicenseCreated string
	LicenseKey     string
	Quantity       *int
	ExpiresAt      *string

	TaxID   *string
	Address Address

	DownloadID int64
}

// Record returns the row in Header order, ready for the CSV writer.
func (r Row) Record() []string {
	return []string{
		strconv.Itoa(r.Index),

		r.UserEmail,
		r.UserName,
		strconv.FormatBool(r.EmailVerified),

		r.LicenseCreated,
		r.LicenseKey,
		intOrEmpty(r.Quantity),
		strOrEmpty(r.ExpiresAt),

		"", // business_name: never sourced
		"", // website_url: never sourced
		strOrEmpty(r.TaxID),
		r.Address.Line1,
		r.Address.Line2,
		r.Address.City,
		r.Address.Country,
		r.Address.State,
		r.Address.Zip,

		strconv.FormatInt(r.DownloadID, 10),
	}
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
