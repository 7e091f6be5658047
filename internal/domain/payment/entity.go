// internal/domain/payment/entity.go
package payment

import "time"

// Payment is one entry in the append-only payment ledger.
type Payment struct {
	ID          int64     `json:"id" db:"id"`
	ClientID    int64     `json:"client_id" db:"client_id"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AddInput is a payment application request. NextChargeDate is an ISO
// calendar date and is mandatory when the client remains partially paid.
type AddInput struct {
	ClientID       int64  `json:"client_id"`
	AmountCents    int64  `json:"amount_cents"`
	NextChargeDate string `json:"next_charge_date,omitempty"`
}
