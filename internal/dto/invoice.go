package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceResponse is the invoice read model exposed over HTTP.
type InvoiceResponse struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	Number          string          `json:"number"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          string          `json:"status"`
	GeneratedAt     time.Time       `json:"generated_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

// OverdueInvoice is one unpaid invoice older than the alert cutoff.
type OverdueInvoice struct {
	ID              uuid.UUID       `json:"id"`
	Number          string          `json:"number"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Status          string          `json:"status"`
}
