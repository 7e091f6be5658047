// internal/domain/report/entity.go
package report

import (
	"time"

	"crediario-service/internal/domain/client"
	"crediario-service/internal/domain/payment"
	"crediario-service/internal/domain/route"
	"crediario-service/internal/domain/visitlog"
)

// Totals are the aggregate financial figures shown on the dashboard.
// All values are integer cents.
type Totals struct {
	ReceivableCents  int64 `json:"receivable_cents"`
	CollectedCents   int64 `json:"collected_cents"`
	OutstandingCents int64 `json:"outstanding_cents"`
	TodayCents       int64 `json:"today_cents"`
	MonthCents       int64 `json:"month_cents"`
}

// Snapshot is a full bulk read of the domain tables, suitable for JSON
// serialization by the backup/export consumer.
type Snapshot struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Clients   []client.Client  `json:"clients"`
	Payments  []payment.Payment `json:"payments"`
	Logs      []visitlog.Entry `json:"logs"`
	Bairros   []route.Bairro   `json:"bairros"`
	Ruas      []route.Rua      `json:"ruas"`
}
