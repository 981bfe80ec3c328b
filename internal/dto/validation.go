package dto

import "github.com/google/uuid"

// ValidationResponse reports a successful order validation.
type ValidationResponse struct {
	OrderID   uuid.UUID `json:"order_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Status    string    `json:"status"`
}
