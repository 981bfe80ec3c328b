package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Invoice statuses, a pure function of paid vs total amount.
const (
	InvoiceStatusAwaitingPayment = "awaiting_payment"
	InvoiceStatusPartiallyPaid   = "partially_paid"
	InvoiceStatusPaid            = "paid"
)

// SettlementEpsilon is the rounding tolerance applied when comparing paid
// against total amounts.
var SettlementEpsilon = decimal.NewFromFloat(0.01)

// Invoice is the billable record for one order. TotalAmount is copied from the
// order at creation and never changes; PaidAmount only grows.
type Invoice struct {
	bun.BaseModel `bun:"table:invoices,alias:i"`

	ID              uuid.UUID       `bun:",pk,type:uuid"`
	OrderID         uuid.UUID       `bun:"order_id,type:uuid"`
	EstablishmentID uuid.UUID       `bun:"establishment_id,type:uuid"`
	Number          string          `bun:"number"`
	TotalAmount     decimal.Decimal `bun:"total_amount"`
	PaidAmount      decimal.Decimal `bun:"paid_amount"`
	RemainingAmount decimal.Decimal `bun:"remaining_amount"`
	Status          string          `bun:"status"`
	GeneratedAt     time.Time       `bun:"generated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	PaidAt          *time.Time      `bun:"paid_at,nullzero"`
}

// InvoiceStatusFor derives the invoice status from the paid and total amounts
// within the settlement tolerance.
func InvoiceStatusFor(paid, total decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(total.Sub(SettlementEpsilon)):
		return InvoiceStatusPaid
	case paid.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusAwaitingPayment
	}
}
