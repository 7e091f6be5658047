// internal/domain/client/entity.go
package client

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
)

// Client is a crediário customer. All monetary values are integer cents;
// PaidCents never exceeds ValueCents.
type Client struct {
	ID        int64          `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Phone     sql.NullString `json:"phone,omitempty" db:"phone"`
	Reference sql.NullString `json:"reference,omitempty" db:"reference"`

	// Money
	ValueCents int64 `json:"value_cents" db:"value_cents"`
	PaidCents  int64 `json:"paid_cents" db:"paid_cents"`

	// Route placement
	StreetID   sql.NullInt64 `json:"street_id,omitempty" db:"street_id"`
	VisitOrder int           `json:"visit_order" db:"visit_order"`
	Priority   bool          `json:"priority" db:"priority"`

	Notes  sql.NullString `json:"notes,omitempty" db:"notes"`
	Status Status         `json:"status" db:"status"`

	// NextChargeDate is an ISO calendar date; null once the client settles.
	NextChargeDate sql.NullString `json:"next_charge_date,omitempty" db:"next_charge_date"`
	LastVisitAt    sql.NullTime   `json:"last_visit_at,omitempty" db:"last_visit_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RemainingCents is the outstanding balance.
func (c *Client) RemainingCents() int64 {
	if c.PaidCents >= c.ValueCents {
		return 0
	}
	return c.ValueCents - c.PaidCents
}

// StatusFor derives the settlement status from paid vs total.
func StatusFor(paidCents, valueCents int64) Status {
	if paidCents >= valueCents {
		return StatusSettled
	}
	return StatusPending
}
