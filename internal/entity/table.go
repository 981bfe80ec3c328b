package entity

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Table statuses.
const (
	TableStatusFree     = "free"
	TableStatusOccupied = "occupied"
)

// Table is one physical table in the dining room.
type Table struct {
	bun.BaseModel `bun:"table:tables,alias:t"`

	ID              uuid.UUID `bun:",pk,type:uuid"`
	EstablishmentID uuid.UUID `bun:"establishment_id,type:uuid"`
	Number          int       `bun:"number"`
	Status          string    `bun:"status"`
}
