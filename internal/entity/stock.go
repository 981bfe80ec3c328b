package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Stock movement directions.
const (
	MovementIn  = "in"
	MovementOut = "out"
)

// MovementRefOrder marks movements caused by order validation.
const MovementRefOrder = "order"

// StockEntry tracks the available quantity of one product. The quantity may go
// negative under the soft stock policy.
type StockEntry struct {
	bun.BaseModel `bun:"table:stock_entries,alias:se"`

	ProductID       uuid.UUID `bun:"product_id,pk,type:uuid"`
	EstablishmentID uuid.UUID `bun:"establishment_id,type:uuid"`
	AvailableQty    int       `bun:"available_quantity"`
	AlertThreshold  int       `bun:"alert_threshold"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// StockMovement is one append-only audit row for an inventory change. The
// (reference, product_id) pair is unique so a retried validation cannot record
// the same consumption twice.
type StockMovement struct {
	bun.BaseModel `bun:"table:stock_movements,alias:sm"`

	ID              uuid.UUID `bun:",pk,type:uuid"`
	ProductID       uuid.UUID `bun:"product_id,type:uuid"`
	EstablishmentID uuid.UUID `bun:"establishment_id,type:uuid"`
	Direction       string    `bun:"direction"`
	Quantity        int       `bun:"quantity"`
	Reference       uuid.UUID `bun:"reference,type:uuid"`
	ReferenceType   string    `bun:"reference_type"`
	OperatorID      uuid.UUID `bun:"operator_id,type:uuid"`
	RecordedAt      time.Time `bun:"recorded_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
