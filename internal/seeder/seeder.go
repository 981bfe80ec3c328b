package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/comptoirhq/comptoir/internal/database"
	"github.com/comptoirhq/comptoir/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Fixed identifiers so reseeding a dev database stays idempotent.
var (
	seedEstablishmentID = uuid.MustParse("0d4f2a9e-1c3b-4f6d-9a8e-5b7c2d1e0f3a")
	seedOperatorID      = uuid.MustParse("6b1e8c4d-2f5a-4e7b-8c9d-0a1b2c3d4e5f")
	seedTableID         = uuid.MustParse("3c9a7e5d-8b2f-4d1c-a6e0-9f4b3a2c1d0e")
	seedProductCoffeeID = uuid.MustParse("1a2b3c4d-5e6f-4a0b-8c1d-2e3f4a5b6c7d")
	seedProductCrepeID  = uuid.MustParse("9f8e7d6c-5b4a-4392-8170-6e5d4c3b2a19")
	seedOrderID         = uuid.MustParse("4e5f6a7b-8c9d-4e1f-a2b3-c4d5e6f7a8b9")
)

// Seeder installs a minimal working tenant for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Run seeds one active establishment with a table, stocked products and a
// pending order ready to validate. Everything inserts with conflict-skip so
// rerunning is harmless.
func (s *Seeder) Run(ctx context.Context) error {
	now := time.Now().UTC()

	est := entity.Establishment{
		ID:                 seedEstablishmentID,
		Name:               "Comptoir du Marche",
		Active:             true,
		SubscriptionStatus: entity.SubscriptionActive,
		CreatedAt:          now,
	}
	if _, err := s.db.NewInsert().Model(&est).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return err
	}

	table := entity.Table{
		ID:              seedTableID,
		EstablishmentID: seedEstablishmentID,
		Number:          1,
		Status:          entity.TableStatusFree,
	}
	if _, err := s.db.NewInsert().Model(&table).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return err
	}

	entries := []entity.StockEntry{
		{ProductID: seedProductCoffeeID, EstablishmentID: seedEstablishmentID, AvailableQty: 120, AlertThreshold: 20, UpdatedAt: now},
		{ProductID: seedProductCrepeID, EstablishmentID: seedEstablishmentID, AvailableQty: 35, AlertThreshold: 10, UpdatedAt: now},
	}
	for i := range entries {
		if _, err := s.db.NewInsert().Model(&entries[i]).
			On("CONFLICT (product_id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	order := entity.Order{
		ID:              seedOrderID,
		EstablishmentID: seedEstablishmentID,
		TableID:         uuid.NullUUID{UUID: seedTableID, Valid: true},
		ServerID:        seedOperatorID,
		Number:          "CMD-1000",
		TotalAmount:     decimal.NewFromFloat(11.50),
		Status:          entity.OrderStatusPending,
		CreatedAt:       now,
	}
	if _, err := s.db.NewInsert().Model(&order).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return err
	}

	items := []entity.OrderItem{
		{ID: uuid.MustParse("7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d"), OrderID: seedOrderID, ProductID: seedProductCoffeeID, ProductName: "Cafe allonge", Quantity: 2, UnitPrice: decimal.NewFromFloat(2.50)},
		{ID: uuid.MustParse("8b9c0d1e-2f3a-4b4c-9d5e-6f7a8b9c0d1e"), OrderID: seedOrderID, ProductID: seedProductCrepeID, ProductName: "Crepe sucre", Quantity: 1, UnitPrice: decimal.NewFromFloat(6.50)},
	}
	for i := range items {
		if _, err := s.db.NewInsert().Model(&items[i]).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded tenant",
			zap.String("establishment_id", seedEstablishmentID.String()),
			zap.String("order_id", seedOrderID.String()),
		)
	}
	return nil
}
