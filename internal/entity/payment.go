package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Payment methods accepted at the counter. The storage layer only persists
// cash, card_bank and mobile_money; checks are stored as cash with the intent
// preserved in the reference field.
const (
	PaymentMethodCash        = "cash"
	PaymentMethodCard        = "card"
	PaymentMethodCardBank    = "card_bank"
	PaymentMethodMobileMoney = "mobile_money"
	PaymentMethodCheck       = "check"
)

// Payment is one settled transaction against an invoice. Rows are append-only;
// a payment is never mutated or retracted.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID              uuid.UUID       `bun:",pk,type:uuid"`
	InvoiceID       uuid.UUID       `bun:"invoice_id,type:uuid"`
	EstablishmentID uuid.UUID       `bun:"establishment_id,type:uuid"`
	OperatorID      uuid.UUID       `bun:"operator_id,type:uuid"`
	Amount          decimal.Decimal `bun:"amount"`
	Method          string          `bun:"method"`
	Reference       string          `bun:"reference,nullzero"`
	RecordedAt      time.Time       `bun:"recorded_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// StoredPaymentMethod maps an external-facing method onto the persisted
// enumeration, folding unsupported methods into the closest stored value.
func StoredPaymentMethod(method, reference string) (string, string) {
	switch method {
	case PaymentMethodCard:
		return PaymentMethodCardBank, reference
	case PaymentMethodCheck:
		if reference != "" {
			return PaymentMethodCash, "CHEQUE: " + reference
		}
		return PaymentMethodCash, "CHEQUE"
	default:
		return method, reference
	}
}

// ValidPaymentMethod reports whether the external-facing method is accepted.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodCheck:
		return true
	}
	return false
}
