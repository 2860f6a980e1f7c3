package paystack

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// envelope is the common Paystack response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *listMeta       `json:"meta,omitempty"`
}

type listMeta struct {
	Next     string `json:"next"`
	Previous string `json:"previous"`
	PerPage  int    `json:"perPage"`
}

// InitializeRequest starts a checkout session. Amount is in the currency's
// minor unit.
type InitializeRequest struct {
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Email     string         `json:"email"`
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type InitializeResponse struct {
	AccessCode       string `json:"access_code"`
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// Authorization is the reusable card authorization attached to a charge.
type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	Bin               string `json:"bin"`
	Last4             string `json:"last4"`
	ExpMonth          string `json:"exp_month"`
	ExpYear           string `json:"exp_year"`
	Channel           string `json:"channel"`
	CardType          string `json:"card_type"`
	Bank              string `json:"bank"`
	CountryCode       string `json:"country_code"`
	Brand             string `json:"brand"`
	PaymentType       string `json:"payment_type"`
	Reusable          bool   `json:"reusable"`
}

// Customer is the processor-side customer record.
type Customer struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// Charge is a single payment attempt/capture on the processor side.
type Charge struct {
	ID            int64          `json:"id"`
	Status        string         `json:"status"`
	Reference     string         `json:"reference"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Channel       string         `json:"channel"`
	Fees          int64          `json:"fees"`
	IPAddress     string         `json:"ip_address"`
	PaidAt        string         `json:"paid_at"`
	Metadata      ChargeMetadata `json:"metadata"`
	Authorization Authorization  `json:"authorization"`
	Customer      Customer       `json:"customer"`
	Plan          string         `json:"plan"`
}

// ChargeMetadata is the metadata bag we attach at initialization and read
// back on confirmation. The transaction hash is the stable resolution key;
// the reference string is not (it is rebuilt per retry).
type ChargeMetadata struct {
	OrderHash         string `json:"order_hash"`
	TransactionHash   string `json:"transaction_hash"`
	SubscriptionHash  string `json:"subscription_hash,omitempty"`
	PlanCode          string `json:"paystack_plan,omitempty"`
	CustomerName      string `json:"customer_name,omitempty"`
	AmountForAuthOnly string `json:"amount_is_for_authorization_only,omitempty"`
}

// AuthorizationOnly reports whether this charge was made solely to obtain a
// card authorization and must be refunded after confirmation.
func (m ChargeMetadata) AuthorizationOnly() bool {
	return m.AmountForAuthOnly == "yes"
}

// UnmarshalJSON tolerates the shapes Paystack actually sends for metadata:
// an object, a JSON-encoded object inside a string, an empty array, or null.
func (m *ChargeMetadata) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("[]")) {
		*m = ChargeMetadata{}
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*m = ChargeMetadata{}
			return nil
		}
		data = []byte(inner)
	}

	type plain ChargeMetadata
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		*m = ChargeMetadata{}
		return nil
	}
	*m = ChargeMetadata(decoded)
	return nil
}

type CreatePlanRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Amount       int64  `json:"amount"`
	Interval     string `json:"interval"`
	InvoiceLimit int    `json:"invoice_limit,omitempty"`
	SendInvoices bool   `json:"send_invoices"`
	SendSMS      bool   `json:"send_sms"`
}

type Plan struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	PlanCode string `json:"plan_code"`
	Amount   int64  `json:"amount"`
	Interval string `json:"interval"`
	Currency string `json:"currency"`
}

type CreateSubscriptionRequest struct {
	Customer      string `json:"customer"`
	Plan          string `json:"plan"`
	Authorization string `json:"authorization,omitempty"`
	StartDate     string `json:"start_date,omitempty"`
}

type Subscription struct {
	ID               int64         `json:"id"`
	SubscriptionCode string        `json:"subscription_code"`
	EmailToken       string        `json:"email_token"`
	Status           string        `json:"status"`
	Amount           int64         `json:"amount"`
	NextPaymentDate  string        `json:"next_payment_date"`
	Authorization    Authorization `json:"authorization"`
	Customer         Customer      `json:"customer"`
	Plan             Plan          `json:"plan"`
}

// NextPaymentTime parses the subscription's next payment date, nil when the
// processor sent none or an unparseable value.
func (s Subscription) NextPaymentTime() *time.Time {
	raw := strings.TrimSpace(s.NextPaymentDate)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

type CreateRefundRequest struct {
	Transaction  string `json:"transaction"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	MerchantNote string `json:"merchant_note,omitempty"`
}

type Refund struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

// ListTransactionsPage is one page of a customer's transaction history.
type ListTransactionsPage struct {
	Transactions []Charge
	Next         string
}
