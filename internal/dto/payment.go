package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordPaymentRequest is the payload for settling part of an invoice.
type RecordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
}

// RecordedPayment is one payment row as exposed over HTTP.
type RecordedPayment struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// PaymentResponse reports a recorded payment and the refreshed invoice state.
type PaymentResponse struct {
	PaymentID    uuid.UUID       `json:"payment_id"`
	NewStatus    string          `json:"new_status"`
	NewRemaining decimal.Decimal `json:"new_remaining"`
}
