package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/entity"
	"github.com/comptoirhq/comptoir/internal/messaging"
	stockrepo "github.com/comptoirhq/comptoir/internal/repository/stock"
	"github.com/comptoirhq/comptoir/internal/session"
	"github.com/comptoirhq/comptoir/internal/tenant"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/comptoirhq/comptoir/service/stock")

// Store is the stock access the ledger needs.
type Store interface {
	GetEntry(ctx context.Context, productID uuid.UUID) (*entity.StockEntry, error)
	SetQuantity(ctx context.Context, productID uuid.UUID, quantity int, at time.Time) error
	MovementExists(ctx context.Context, reference, productID uuid.UUID) (bool, error)
	InsertMovement(ctx context.Context, m *entity.StockMovement) error
	LowStock(ctx context.Context, establishmentID uuid.UUID) ([]*entity.StockEntry, error)
}

// GateChecker verifies the tenant may operate.
type GateChecker interface {
	Check(ctx context.Context, establishmentID uuid.UUID) error
}

// StockAlertEvent is emitted for each entry at or below its threshold.
type StockAlertEvent struct {
	Type            string    `json:"type"`
	ProductID       uuid.UUID `json:"product_id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	AvailableQty    int       `json:"available_quantity"`
	AlertThreshold  int       `json:"alert_threshold"`
	ObservedAt      time.Time `json:"observed_at"`
}

// EventStockAlert is the envelope type for StockAlertEvent.
const EventStockAlert = "stock.alert"

// DecrementRequest describes one consumption against the ledger. OrderID keys
// the idempotency guard: the same (order, product) pair is never decremented
// twice.
type DecrementRequest struct {
	ProductID       uuid.UUID
	ProductName     string
	Quantity        int
	OrderID         uuid.UUID
	EstablishmentID uuid.UUID
}

// Ledger owns inventory consumption and the levels that need attention.
type Ledger struct {
	store         Store
	gate          GateChecker
	logger        *zap.Logger
	publisher     messaging.Client
	allowNegative bool
	enabled       bool
	publish       bool
	now           func() time.Time
}

// Params defines dependencies for constructing Ledger.
type Params struct {
	fx.In

	Repository *stockrepo.Repository
	Gate       *tenant.Gate
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewLedger wires a Ledger from the Fx graph.
func NewLedger(p Params) *Ledger {
	return NewLedgerWith(p.Repository, p.Gate, p.Config, p.Logger, p.Publisher)
}

// NewLedgerWith builds a Ledger from explicit collaborators.
func NewLedgerWith(store Store, gate GateChecker, cfg config.Config, logger *zap.Logger, publisher messaging.Client) *Ledger {
	return &Ledger{
		store:         store,
		gate:          gate,
		logger:        logger,
		publisher:     publisher,
		allowNegative: cfg.Stock.AllowNegative,
		enabled:       cfg.Stock.AlertsEnabled,
		publish:       cfg.Messaging.Enabled,
		now:           time.Now,
	}
}

// Decrement consumes stock for one order line and records the movement. The
// movement existence check keys the whole step: replaying a validation skips
// lines a previous attempt already consumed. Untracked products are a no-op.
func (l *Ledger) Decrement(ctx context.Context, sess session.Session, req DecrementRequest) error {
	exists, err := l.store.MovementExists(ctx, req.OrderID, req.ProductID)
	if err != nil {
		return errorbank.Internal("failed to check stock movement", errorbank.WithCause(err))
	}
	if exists {
		return nil
	}

	entry, err := l.store.GetEntry(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, stockrepo.ErrNotFound) {
			return nil
		}
		return errorbank.Internal("failed to read stock", errorbank.WithCause(err))
	}

	if entry.AvailableQty < req.Quantity {
		if !l.allowNegative {
			return errorbank.Unprocessable(fmt.Sprintf("insufficient stock for %s", req.ProductName))
		}
		l.logger.Warn("insufficient stock, proceeding anyway",
			zap.String("order_id", req.OrderID.String()),
			zap.String("product", req.ProductName),
			zap.Int("available", entry.AvailableQty),
			zap.Int("requested", req.Quantity))
	}

	if err := l.store.SetQuantity(ctx, req.ProductID, entry.AvailableQty-req.Quantity, l.now().UTC()); err != nil {
		return errorbank.Internal("failed to decrement stock", errorbank.WithCause(err))
	}

	movement := &entity.StockMovement{
		ID:              uuid.New(),
		ProductID:       req.ProductID,
		EstablishmentID: req.EstablishmentID,
		Direction:       entity.MovementOut,
		Quantity:        req.Quantity,
		Reference:       req.OrderID,
		ReferenceType:   entity.MovementRefOrder,
		OperatorID:      sess.OperatorID,
		RecordedAt:      l.now().UTC(),
	}
	if err := l.store.InsertMovement(ctx, movement); err != nil {
		// The quantity is already written; the movement insert is audit, not
		// the source of truth, so a failure here must not undo the consume.
		l.logger.Warn("failed to record stock movement",
			zap.String("order_id", req.OrderID.String()),
			zap.String("product_id", req.ProductID.String()),
			zap.Error(err))
	}
	return nil
}

// Alerts returns the entries at or below their alert threshold and publishes
// one event per entry so downstream consumers can notify staff.
func (l *Ledger) Alerts(ctx context.Context, sess session.Session) ([]*entity.StockEntry, error) {
	ctx, span := serviceTracer.Start(ctx, "StockLedger.Alerts")
	defer span.End()

	if !sess.Valid() {
		return nil, errorbank.BadRequest("missing operator session")
	}
	if err := l.gate.Check(ctx, sess.EstablishmentID); err != nil {
		return nil, err
	}
	if !l.enabled {
		return nil, nil
	}

	entries, err := l.store.LowStock(ctx, sess.EstablishmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list stock alerts", errorbank.WithCause(err))
	}

	for _, entry := range entries {
		l.publishAlert(ctx, entry)
	}
	return entries, nil
}

func (l *Ledger) publishAlert(ctx context.Context, entry *entity.StockEntry) {
	if !l.publish || l.publisher == nil {
		return
	}
	event := StockAlertEvent{
		Type:            EventStockAlert,
		ProductID:       entry.ProductID,
		EstablishmentID: entry.EstablishmentID,
		AvailableQty:    entry.AvailableQty,
		AlertThreshold:  entry.AlertThreshold,
		ObservedAt:      l.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("marshal stock alert", zap.Error(err))
		return
	}
	if err := l.publisher.Publish(ctx, []byte(fmt.Sprintf("stock-%s", entry.ProductID)), payload); err != nil {
		l.logger.Error("publish stock alert", zap.Error(err))
	}
}
