package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SubscriptionActive is the only subscription status that allows operations.
const SubscriptionActive = "active"

// Establishment is a tenant. Lifecycle management happens in the back office;
// this service only reads the activity gate.
type Establishment struct {
	bun.BaseModel `bun:"table:establishments,alias:e"`

	ID                 uuid.UUID  `bun:",pk,type:uuid"`
	Name               string     `bun:"name"`
	Active             bool       `bun:"active"`
	SubscriptionStatus string     `bun:"subscription_status"`
	SubscriptionEnd    *time.Time `bun:"subscription_end,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// Operational reports whether the tenant may record or settle orders.
func (e *Establishment) Operational() bool {
	return e != nil && e.Active && e.SubscriptionStatus == SubscriptionActive
}
