package dto

import "github.com/google/uuid"

// StockAlert is one product at or below its alert threshold.
type StockAlert struct {
	ProductID         uuid.UUID `json:"product_id"`
	AvailableQuantity int       `json:"available_quantity"`
	Threshold         int       `json:"threshold"`
}
