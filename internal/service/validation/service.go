package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/comptoirhq/comptoir/internal/cache"
	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/entity"
	"github.com/comptoirhq/comptoir/internal/messaging"
	"github.com/comptoirhq/comptoir/internal/numbering"
	invoicerepo "github.com/comptoirhq/comptoir/internal/repository/invoice"
	orderrepo "github.com/comptoirhq/comptoir/internal/repository/order"
	procedurerepo "github.com/comptoirhq/comptoir/internal/repository/procedure"
	tablerepo "github.com/comptoirhq/comptoir/internal/repository/table"
	stocksvc "github.com/comptoirhq/comptoir/internal/service/stock"
	"github.com/comptoirhq/comptoir/internal/session"
	"github.com/comptoirhq/comptoir/internal/tenant"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
	"github.com/comptoirhq/comptoir/pkg/retrying"
)

var serviceTracer = otel.Tracer("github.com/comptoirhq/comptoir/service/validation")

// OrderStore is the order access the coordinator needs.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	MarkValidated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// InvoiceStore covers invoice emission and the duplicate guard.
type InvoiceStore interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error)
	Insert(ctx context.Context, inv *entity.Invoice) error
}

// StockConsumer decrements inventory with per-line idempotency guards.
type StockConsumer interface {
	Decrement(ctx context.Context, sess session.Session, req stocksvc.DecrementRequest) error
}

// TableStore updates table occupancy.
type TableStore interface {
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// ProcedureClient is the preferred single-call write primitive.
type ProcedureClient interface {
	ValidateOrder(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error)
	SupportsValidateOrder(ctx context.Context) (bool, error)
}

// Numberer produces invoice numbers.
type Numberer interface {
	Next(establishmentID uuid.UUID) string
}

// GateChecker verifies the tenant may operate.
type GateChecker interface {
	Check(ctx context.Context, establishmentID uuid.UUID) error
}

// Outcome reports a completed validation.
type Outcome struct {
	OrderID   uuid.UUID
	InvoiceID uuid.UUID
}

// OrderValidatedEvent is emitted when an order is validated and its invoice
// exists.
type OrderValidatedEvent struct {
	Type            string    `json:"type"`
	OrderID         uuid.UUID `json:"order_id"`
	InvoiceID       uuid.UUID `json:"invoice_id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	ValidatedAt     time.Time `json:"validated_at"`
}

// EventOrderValidated is the envelope type for OrderValidatedEvent.
const EventOrderValidated = "order.validated"

// Coordinator transitions orders from pending to validated: stock decrement,
// table occupancy, invoice emission. It prefers the atomic procedure and falls
// back to the manual idempotent sequence when the procedure is unavailable.
type Coordinator struct {
	orders     OrderStore
	invoices   InvoiceStore
	stocks     StockConsumer
	tables     TableStore
	procs      ProcedureClient
	numberer   Numberer
	gate       GateChecker
	cache      cache.Store
	cacheTTL   time.Duration
	logger     *zap.Logger
	publisher  messaging.Client
	validation config.Validation
	retry      retrying.Policy
	messaging  messagingConfig
	now        func() time.Time
}

type messagingConfig struct {
	enabled bool
}

// Params defines dependencies for constructing Coordinator.
type Params struct {
	fx.In

	Orders    *orderrepo.Repository
	Invoices  *invoicerepo.Repository
	Stocks    *stocksvc.Ledger
	Tables    *tablerepo.Repository
	Procs     *procedurerepo.Repository
	Numberer  *numbering.InvoiceNumberer
	Gate      *tenant.Gate
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
}

// Deps groups the coordinator's collaborators behind their interfaces, for
// construction outside the Fx graph.
type Deps struct {
	Orders    OrderStore
	Invoices  InvoiceStore
	Stocks    StockConsumer
	Tables    TableStore
	Procs     ProcedureClient
	Numberer  Numberer
	Gate      GateChecker
	Cache     cache.Store
	Publisher messaging.Client
}

// NewCoordinator wires a Coordinator from the Fx graph.
func NewCoordinator(p Params) *Coordinator {
	return NewCoordinatorWith(Deps{
		Orders:    p.Orders,
		Invoices:  p.Invoices,
		Stocks:    p.Stocks,
		Tables:    p.Tables,
		Procs:     p.Procs,
		Numberer:  p.Numberer,
		Gate:      p.Gate,
		Cache:     p.Cache,
		Publisher: p.Publisher,
	}, p.Config, p.Logger)
}

// NewCoordinatorWith builds a Coordinator from explicit collaborators.
func NewCoordinatorWith(deps Deps, cfg config.Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		orders:     deps.Orders,
		invoices:   deps.Invoices,
		stocks:     deps.Stocks,
		tables:     deps.Tables,
		procs:      deps.Procs,
		numberer:   deps.Numberer,
		gate:       deps.Gate,
		cache:      deps.Cache,
		cacheTTL:   cfg.Cache.DefaultTTL,
		logger:     logger,
		publisher:  deps.Publisher,
		validation: cfg.Validation,
		retry: retrying.Policy{
			MaxAttempts:     uint64(cfg.Retry.MaxAttempts),
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
		messaging: messagingConfig{enabled: cfg.Messaging.Enabled},
		now:       time.Now,
	}
}

// Validate transitions an order from pending to validated and emits its
// invoice. Calling it again on the same order is safe: every write is guarded,
// so a retry completes only the steps a previous attempt left undone.
func (c *Coordinator) Validate(ctx context.Context, sess session.Session, orderID uuid.UUID) (*Outcome, error) {
	ctx, span := serviceTracer.Start(ctx, "ValidationCoordinator.Validate", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	if !sess.Valid() {
		return nil, errorbank.BadRequest("missing operator session")
	}
	if err := c.gate.Check(ctx, sess.EstablishmentID); err != nil {
		return nil, err
	}

	order, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if order.EstablishmentID != sess.EstablishmentID {
		return nil, errorbank.NotFound("order not found")
	}

	switch order.Status {
	case entity.OrderStatusPending:
		// validated below
	case entity.OrderStatusValidated:
		// A previous attempt may have stopped partway; finish the missing
		// steps through the fallback guards.
		if inv, err := c.invoices.GetByOrderID(ctx, orderID); err == nil {
			return c.succeed(ctx, sess, order, inv.ID), nil
		}
		return c.validateFallback(ctx, sess, order)
	default:
		return nil, errorbank.Conflict(fmt.Sprintf("order is %s, not pending", order.Status))
	}

	if outcome, handled, err := c.validateAtomic(ctx, sess, order); handled {
		return outcome, err
	}
	return c.validateFallback(ctx, sess, order)
}

// validateAtomic tries the single-call procedure. handled=false means the
// coordinator should fall back: the procedure is absent, disabled, or failed
// at the transport level without reporting a business verdict.
func (c *Coordinator) validateAtomic(ctx context.Context, sess session.Session, order *entity.Order) (*Outcome, bool, error) {
	if !c.validation.AtomicEnabled {
		return nil, false, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.validation.ProbeTimeout)
	supported, err := c.procs.SupportsValidateOrder(probeCtx)
	cancel()
	if err != nil || !supported {
		if err != nil {
			c.logger.Warn("atomic validation probe failed", zap.Error(err))
		}
		return nil, false, nil
	}

	result, err := c.procs.ValidateOrder(ctx, order.ID)
	if err != nil {
		c.logger.Warn("atomic validation unreachable, using manual sequence",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, false, nil
	}

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "validation rejected"
		}
		return nil, true, errorbank.Unprocessable(msg)
	}

	if !result.ValidatedAt.IsZero() {
		at := result.ValidatedAt.UTC()
		order.ValidatedAt = &at
	}

	invoiceID := result.InvoiceID.UUID
	if !result.InvoiceID.Valid {
		inv, err := c.invoices.GetByOrderID(ctx, order.ID)
		if err != nil {
			return nil, true, errorbank.Partial("order validated but invoice not readable",
				errorbank.WithCause(err),
				errorbank.WithDetail("order_id", order.ID.String()))
		}
		invoiceID = inv.ID
	}

	return c.succeed(ctx, sess, order, invoiceID), true, nil
}

// validateFallback executes the manual sequence. Every write carries its own
// idempotency guard so the whole sequence can be replayed after a partial
// failure.
func (c *Coordinator) validateFallback(ctx context.Context, sess session.Session, order *entity.Order) (*Outcome, error) {
	ctx, span := serviceTracer.Start(ctx, "ValidationCoordinator.fallback", trace.WithAttributes(attribute.String("order.id", order.ID.String())))
	defer span.End()

	completed := make([]string, 0, 4)

	if err := c.consumeStock(ctx, sess, order); err != nil {
		return nil, err
	}
	completed = append(completed, "stock")

	if order.Status == entity.OrderStatusPending {
		at := c.now().UTC()
		won := false
		err := retrying.Do(ctx, c.retry, func(ctx context.Context) error {
			var err error
			won, err = c.orders.MarkValidated(ctx, order.ID, at)
			return err
		})
		if err != nil {
			return nil, errorbank.Partial("stock consumed but order not validated",
				errorbank.WithCause(err),
				errorbank.WithDetail("completed", completed))
		}
		if !won {
			// A concurrent validator moved the order first. Its invoice and
			// movements are (or will be) in place; this call lost the race.
			return nil, errorbank.Conflict("order validated by a concurrent operation")
		}
		order.ValidatedAt = &at
	}
	completed = append(completed, "order")

	if order.TableID.Valid {
		if err := c.tables.SetStatus(ctx, order.TableID.UUID, entity.TableStatusOccupied); err != nil {
			// Table occupancy is cosmetic relative to the money path; log and
			// keep going.
			c.logger.Warn("failed to occupy table",
				zap.String("order_id", order.ID.String()),
				zap.String("table_id", order.TableID.UUID.String()),
				zap.Error(err))
		} else {
			completed = append(completed, "table")
		}
	}

	invoiceID, err := c.ensureInvoice(ctx, order)
	if err != nil {
		return nil, errorbank.Partial("order validated but invoice not created",
			errorbank.WithCause(err),
			errorbank.WithDetail("completed", completed),
			errorbank.WithDetail("order_id", order.ID.String()))
	}

	return c.succeed(ctx, sess, order, invoiceID), nil
}

// consumeStock runs one guarded ledger decrement per line item.
func (c *Coordinator) consumeStock(ctx context.Context, sess session.Session, order *entity.Order) error {
	for _, item := range order.Items {
		err := c.stocks.Decrement(ctx, sess, stocksvc.DecrementRequest{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			OrderID:         order.ID,
			EstablishmentID: order.EstablishmentID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureInvoice creates the invoice if no previous attempt already did. A
// number collision gets one fresh number before giving up.
func (c *Coordinator) ensureInvoice(ctx context.Context, order *entity.Order) (uuid.UUID, error) {
	if inv, err := c.invoices.GetByOrderID(ctx, order.ID); err == nil {
		return inv.ID, nil
	} else if !errors.Is(err, invoicerepo.ErrNotFound) {
		return uuid.Nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		inv := &entity.Invoice{
			ID:              uuid.New(),
			OrderID:         order.ID,
			EstablishmentID: order.EstablishmentID,
			Number:          c.numberer.Next(order.EstablishmentID),
			TotalAmount:     order.TotalAmount,
			PaidAmount:      decimal.Zero,
			RemainingAmount: order.TotalAmount,
			Status:          entity.InvoiceStatusAwaitingPayment,
			GeneratedAt:     c.now().UTC(),
		}
		err := c.invoices.Insert(ctx, inv)
		if err == nil {
			return inv.ID, nil
		}
		if errors.Is(err, invoicerepo.ErrDuplicate) {
			// Either the number collided or a concurrent retry inserted the
			// invoice for this order; re-read to find out.
			if existing, readErr := c.invoices.GetByOrderID(ctx, order.ID); readErr == nil {
				return existing.ID, nil
			}
			continue
		}
		return uuid.Nil, err
	}
	return uuid.Nil, errorbank.Unprocessable("invoice number collision persisted across retries")
}

func (c *Coordinator) succeed(ctx context.Context, sess session.Session, order *entity.Order, invoiceID uuid.UUID) *Outcome {
	c.invalidateCaches(ctx, order.ID, invoiceID)
	c.publishValidated(ctx, order, invoiceID)
	return &Outcome{OrderID: order.ID, InvoiceID: invoiceID}
}

func (c *Coordinator) invalidateCaches(ctx context.Context, orderID, invoiceID uuid.UUID) {
	if c.cache == nil {
		return
	}
	for _, key := range []string{
		fmt.Sprintf("orders:%s", orderID),
		fmt.Sprintf("invoices:%s", invoiceID),
	} {
		if err := c.cache.Delete(ctx, key); err != nil && c.logger != nil {
			c.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *Coordinator) publishValidated(ctx context.Context, order *entity.Order, invoiceID uuid.UUID) {
	if !c.messaging.enabled || c.publisher == nil {
		return
	}
	// The event carries the persisted validation timestamp, so a replayed
	// validation publishes the same instant as the original one.
	validatedAt := c.now().UTC()
	if order.ValidatedAt != nil {
		validatedAt = order.ValidatedAt.UTC()
	}
	event := OrderValidatedEvent{
		Type:            EventOrderValidated,
		OrderID:         order.ID,
		InvoiceID:       invoiceID,
		EstablishmentID: order.EstablishmentID,
		ValidatedAt:     validatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal order validated", zap.Error(err))
		return
	}
	if err := c.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%s", order.ID)), payload); err != nil {
		c.logger.Error("publish order validated", zap.Error(err))
	}
}
