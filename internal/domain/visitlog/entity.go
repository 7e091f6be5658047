// internal/domain/visitlog/entity.go
package visitlog

import "time"

// Entry is one audit line for a client. Only the 50 most recent entries
// per client are retained; older ones are pruned on insert.
type Entry struct {
	ID          int64     `json:"id" db:"id"`
	ClientID    int64     `json:"client_id" db:"client_id"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// KeepPerClient is the retention cap applied on insert.
const KeepPerClient = 50
