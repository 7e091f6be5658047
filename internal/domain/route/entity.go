// internal/domain/route/entity.go
package route

import "time"

// Bairro is a neighborhood, the top of the visit-route hierarchy.
// Deleting one cascades to its ruas.
type Bairro struct {
	ID        int64     `json:"id" db:"id"`
	Nome      string    `json:"nome" db:"nome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Rua is a street inside a bairro. Deleting one detaches its clients
// (street reference set to null); the clients survive.
type Rua struct {
	ID        int64     `json:"id" db:"id"`
	BairroID  int64     `json:"bairro_id" db:"bairro_id"`
	Nome      string    `json:"nome" db:"nome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RuaSummary is a rua with its client count, for route planning screens.
type RuaSummary struct {
	Rua
	ClientCount int64 `json:"client_count" db:"client_count"`
}
