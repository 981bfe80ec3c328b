package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order statuses. An order moves pending -> validated -> completed; cancelled
// is terminal and never entered by this service.
const (
	OrderStatusPending   = "pending"
	OrderStatusValidated = "validated"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Order represents a guest order awaiting validation and settlement.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              uuid.UUID       `bun:",pk,type:uuid"`
	EstablishmentID uuid.UUID       `bun:"establishment_id,type:uuid"`
	TableID         uuid.NullUUID   `bun:"table_id,type:uuid"`
	ServerID        uuid.UUID       `bun:"server_id,type:uuid"`
	Number          string          `bun:"number"`
	TotalAmount     decimal.Decimal `bun:"total_amount"`
	Status          string          `bun:"status"`
	CreatedAt       time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	ValidatedAt     *time.Time      `bun:"validated_at,nullzero"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OrderItem is one ordered line with the product name and unit price
// snapshotted at order time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID          uuid.UUID       `bun:",pk,type:uuid"`
	OrderID     uuid.UUID       `bun:"order_id,type:uuid"`
	ProductID   uuid.UUID       `bun:"product_id,type:uuid"`
	ProductName string          `bun:"product_name"`
	Quantity    int             `bun:"quantity"`
	UnitPrice   decimal.Decimal `bun:"unit_price"`
}
