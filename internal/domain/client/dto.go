// internal/domain/client/dto.go
package client

// CreateInput carries the fields accepted when registering a client.
// Money is already in cents; the service validates ranges.
type CreateInput struct {
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Reference      string `json:"reference,omitempty"`
	ValueCents     int64  `json:"value_cents"`
	PaidCents      int64  `json:"paid_cents,omitempty"`
	StreetID       *int64 `json:"street_id,omitempty"`
	VisitOrder     int    `json:"visit_order,omitempty"`
	Priority       bool   `json:"priority,omitempty"`
	Notes          string `json:"notes,omitempty"`
	NextChargeDate string `json:"next_charge_date,omitempty"`
}

// UpdateInput is a partial update: nil fields are left untouched.
// StreetID and NextChargeDate use a double pointer so callers can
// distinguish "leave alone" (nil) from "clear" (*nil).
type UpdateInput struct {
	Name           *string `json:"name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Reference      *string `json:"reference,omitempty"`
	ValueCents     *int64  `json:"value_cents,omitempty"`
	PaidCents      *int64  `json:"paid_cents,omitempty"`
	StreetID       **int64 `json:"-"`
	VisitOrder     *int    `json:"visit_order,omitempty"`
	Priority       *bool   `json:"priority,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	NextChargeDate **string `json:"-"`
}

// Empty reports whether the update carries no field at all.
func (u *UpdateInput) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.Reference == nil &&
		u.ValueCents == nil && u.PaidCents == nil && u.StreetID == nil &&
		u.VisitOrder == nil && u.Priority == nil && u.Notes == nil &&
		u.NextChargeDate == nil
}

// Page is a paginated client listing.
type Page struct {
	Items  []Client `json:"items"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
