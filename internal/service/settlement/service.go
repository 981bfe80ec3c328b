package settlement

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
	invoicerepo "github.com/comptoirhq/comptoir/internal/repository/invoice"
	orderrepo "github.com/comptoirhq/comptoir/internal/repository/order"
	paymentrepo "github.com/comptoirhq/comptoir/internal/repository/payment"
	"github.com/comptoirhq/comptoir/internal/session"
	"github.com/comptoirhq/comptoir/internal/tenant"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/comptoirhq/comptoir/service/settlement")

// InvoiceStore is the invoice access the engine needs.
type InvoiceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
	UpdateAmountsCAS(ctx context.Context, id uuid.UUID, expectedPaid, newPaid, newRemaining decimal.Decimal, status string, paidAt *time.Time) (bool, error)
	ListOverdue(ctx context.Context, establishmentID uuid.UUID, cutoff time.Time) ([]*entity.Invoice, error)
}

// PaymentStore appends and lists payment rows.
type PaymentStore interface {
	Insert(ctx context.Context, p *entity.Payment) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*entity.Payment, error)
}

// OrderStore completes orders once their invoice is settled.
type OrderStore interface {
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}

// GateChecker verifies the tenant may operate.
type GateChecker interface {
	Check(ctx context.Context, establishmentID uuid.UUID) error
}

// Outcome reports a recorded payment and the refreshed invoice state.
type Outcome struct {
	PaymentID    uuid.UUID
	NewStatus    string
	NewRemaining decimal.Decimal
}

// InvoicePaidEvent is emitted when an invoice reaches fully paid.
type InvoicePaidEvent struct {
	Type            string          `json:"type"`
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	EstablishmentID uuid.UUID       `json:"establishment_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAt          time.Time       `json:"paid_at"`
}

// EventInvoicePaid is the envelope type for InvoicePaidEvent.
const EventInvoicePaid = "invoice.paid"

// Engine accumulates payments against invoices until they are settled, then
// cascades completion back to the order.
type Engine struct {
	invoices   InvoiceStore
	payments   PaymentStore
	orders     OrderStore
	gate       GateChecker
	cache      cache.Store
	cacheTTL   time.Duration
	logger     *zap.Logger
	publisher  messaging.Client
	settlement config.Settlement
	messaging  messagingConfig
	now        func() time.Time
}

type messagingConfig struct {
	enabled bool
}

// Params defines dependencies for constructing Engine.
type Params struct {
	fx.In

	Invoices  *invoicerepo.Repository
	Payments  *paymentrepo.Repository
	Orders    *orderrepo.Repository
	Gate      *tenant.Gate
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
}

// Deps groups the engine's collaborators behind their interfaces, for
// construction outside the Fx graph.
type Deps struct {
	Invoices  InvoiceStore
	Payments  PaymentStore
	Orders    OrderStore
	Gate      GateChecker
	Cache     cache.Store
	Publisher messaging.Client
}

// NewEngine wires an Engine from the Fx graph.
func NewEngine(p Params) *Engine {
	return NewEngineWith(Deps{
		Invoices:  p.Invoices,
		Payments:  p.Payments,
		Orders:    p.Orders,
		Gate:      p.Gate,
		Cache:     p.Cache,
		Publisher: p.Publisher,
	}, p.Config, p.Logger)
}

// NewEngineWith builds an Engine from explicit collaborators.
func NewEngineWith(deps Deps, cfg config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		invoices:   deps.Invoices,
		payments:   deps.Payments,
		orders:     deps.Orders,
		gate:       deps.Gate,
		cache:      deps.Cache,
		cacheTTL:   cfg.Cache.DefaultTTL,
		logger:     logger,
		publisher:  deps.Publisher,
		settlement: cfg.Settlement,
		messaging:  messagingConfig{enabled: cfg.Messaging.Enabled},
		now:        time.Now,
	}
}

// RecordPayment appends one payment and folds it into the invoice. The payment
// row is never retracted: if the invoice update cannot be applied the caller
// gets a partial error naming the payment so the state can be reconciled by
// retrying the invoice-side bookkeeping.
func (e *Engine) RecordPayment(ctx context.Context, sess session.Session, invoiceID uuid.UUID, amount decimal.Decimal, method, reference string) (*Outcome, error) {
	ctx, span := serviceTracer.Start(ctx, "SettlementEngine.RecordPayment", trace.WithAttributes(
		attribute.String("invoice.id", invoiceID.String()),
		attribute.String("payment.method", method),
	))
	defer span.End()

	if !sess.Valid() {
		return nil, errorbank.BadRequest("missing operator session")
	}
	if err := e.gate.Check(ctx, sess.EstablishmentID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, errorbank.BadRequest("amount must be positive")
	}
	if !entity.ValidPaymentMethod(method) {
		return nil, errorbank.BadRequest(fmt.Sprintf("unsupported payment method %q", method))
	}

	inv, err := e.getInvoice(ctx, sess, invoiceID)
	if err != nil {
		return nil, err
	}

	if amount.GreaterThan(inv.RemainingAmount.Add(entity.SettlementEpsilon)) {
		return nil, errorbank.Unprocessable(fmt.Sprintf("amount %s exceeds remaining %s", amount, inv.RemainingAmount))
	}

	storedMethod, storedRef := entity.StoredPaymentMethod(method, reference)
	pay := &entity.Payment{
		ID:              uuid.New(),
		InvoiceID:       inv.ID,
		EstablishmentID: sess.EstablishmentID,
		OperatorID:      sess.OperatorID,
		Amount:          amount,
		Method:          storedMethod,
		Reference:       storedRef,
		RecordedAt:      e.now().UTC(),
	}
	if err := e.payments.Insert(ctx, pay); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment insert failed")
		return nil, errorbank.Internal("failed to record payment", errorbank.WithCause(err))
	}

	newStatus, newRemaining, applyErr := e.applyToInvoice(ctx, inv.ID, pay.ID, amount)
	if applyErr != nil {
		if errorbank.IsKind(applyErr, errorbank.KindUnprocessableEntity) {
			return nil, applyErr
		}
		return nil, errorbank.Partial("payment recorded but invoice not updated",
			errorbank.WithCause(applyErr),
			errorbank.WithDetail("payment_id", pay.ID.String()),
			errorbank.WithDetail("invoice_id", inv.ID.String()))
	}

	e.invalidateCaches(ctx, inv.ID, inv.OrderID)

	if newStatus == entity.InvoiceStatusPaid {
		e.completeOrder(ctx, inv)
		e.publishPaid(ctx, inv)
	}

	return &Outcome{PaymentID: pay.ID, NewStatus: newStatus, NewRemaining: newRemaining}, nil
}

// applyToInvoice folds the amount into the invoice with a compare-and-swap on
// paid_amount, retrying a bounded number of times when concurrent settlements
// interleave. Each round re-reads and re-validates the remaining ceiling
// against that fresh read, so an amount that fit at the pre-check but no
// longer fits after a concurrent settlement is rejected instead of pushing
// paid_amount past the total. The orphaned payment row is the reconcile case
// the caller already handles.
func (e *Engine) applyToInvoice(ctx context.Context, invoiceID, paymentID uuid.UUID, amount decimal.Decimal) (string, decimal.Decimal, error) {
	for attempt := 0; attempt < e.settlement.CASAttempts; attempt++ {
		current, err := e.invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return "", decimal.Zero, err
		}

		if amount.GreaterThan(current.RemainingAmount.Add(entity.SettlementEpsilon)) {
			return "", decimal.Zero, errorbank.Unprocessable(
				fmt.Sprintf("amount %s exceeds remaining %s", amount, current.RemainingAmount),
				errorbank.WithDetail("payment_id", paymentID.String()),
				errorbank.WithDetail("invoice_id", invoiceID.String()))
		}

		newPaid := current.PaidAmount.Add(amount)
		newRemaining := current.TotalAmount.Sub(newPaid)
		newStatus := entity.InvoiceStatusFor(newPaid, current.TotalAmount)

		var paidAt *time.Time
		if newStatus == entity.InvoiceStatusPaid {
			at := e.now().UTC()
			paidAt = &at
		}

		applied, err := e.invoices.UpdateAmountsCAS(ctx, invoiceID, current.PaidAmount, newPaid, newRemaining, newStatus, paidAt)
		if err != nil {
			return "", decimal.Zero, err
		}
		if applied {
			return newStatus, newRemaining, nil
		}
	}
	return "", decimal.Zero, fmt.Errorf("invoice update contention persisted across %d attempts", e.settlement.CASAttempts)
}

// completeOrder cascades full settlement to the order. Failure here is an
// inconsistency to reconcile, not a reason to fail the payment.
func (e *Engine) completeOrder(ctx context.Context, inv *entity.Invoice) {
	if _, err := e.orders.MarkCompleted(ctx, inv.OrderID); err != nil {
		e.logger.Error("invoice paid but order not completed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("order_id", inv.OrderID.String()),
			zap.Error(err))
	}
}

// GetInvoice returns the invoice read model, consulting cache when available.
func (e *Engine) GetInvoice(ctx context.Context, sess session.Session, invoiceID uuid.UUID) (*entity.Invoice, error) {
	ctx, span := serviceTracer.Start(ctx, "SettlementEngine.GetInvoice", trace.WithAttributes(attribute.String("invoice.id", invoiceID.String())))
	defer span.End()

	if !sess.Valid() {
		return nil, errorbank.BadRequest("missing operator session")
	}

	if inv, err := e.getFromCache(ctx, invoiceID); err == nil {
		if inv.EstablishmentID != sess.EstablishmentID {
			return nil, errorbank.NotFound("invoice not found")
		}
		return inv, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		e.logger.Warn("invoice cache read failed", zap.String("id", invoiceID.String()), zap.Error(err))
	}

	inv, err := e.getInvoice(ctx, sess, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := e.storeInCache(ctx, inv); err != nil {
		e.logger.Warn("invoice cache write failed", zap.String("id", invoiceID.String()), zap.Error(err))
	}
	return inv, nil
}

// ListPayments returns the payments recorded against one invoice.
func (e *Engine) ListPayments(ctx context.Context, sess session.Session, invoiceID uuid.UUID) ([]*entity.Payment, error) {
	ctx, span := serviceTracer.Start(ctx, "SettlementEngine.ListPayments", trace.WithAttributes(attribute.String("invoice.id", invoiceID.String())))
	defer span.End()

	if !sess.Valid() {
		return nil, errorbank.BadRequest("missing operator session")
	}
	if _, err := e.getInvoice(ctx, sess, invoiceID); err != nil {
		return nil, err
	}

	payments, err := e.payments.ListByInvoice(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list payments", errorbank.WithCause(err))
	}
	return payments, nil
}

// ListOverdue returns unpaid invoices older than the configured cutoff.
func (e *Engine) ListOverdue(ctx context.Context, sess session.Session) ([]*entity.Invoice, error) {
	ctx, span := serviceTracer.Start(ctx, "SettlementEngine.ListOverdue")
	defer span.End()

	if !sess.Valid() {
		return nil, errorbank.BadRequest("missing operator session")
	}
	if err := e.gate.Check(ctx, sess.EstablishmentID); err != nil {
		return nil, err
	}

	cutoff := e.now().UTC().Add(-e.settlement.OverdueAfter)
	invoices, err := e.invoices.ListOverdue(ctx, sess.EstablishmentID, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list overdue invoices", errorbank.WithCause(err))
	}
	return invoices, nil
}

func (e *Engine) getInvoice(ctx context.Context, sess session.Session, invoiceID uuid.UUID) (*entity.Invoice, error) {
	inv, err := e.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, invoicerepo.ErrNotFound) {
			return nil, errorbank.NotFound("invoice not found")
		}
		return nil, errorbank.Internal("failed to load invoice", errorbank.WithCause(err))
	}
	if inv.EstablishmentID != sess.EstablishmentID {
		return nil, errorbank.NotFound("invoice not found")
	}
	return inv, nil
}

func (e *Engine) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("invoices:%s", id)
}

func (e *Engine) getFromCache(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	if e.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	raw, err := e.cache.Get(ctx, e.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var inv entity.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (e *Engine) storeInCache(ctx context.Context, inv *entity.Invoice) error {
	if e.cache == nil || inv == nil {
		return nil
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return e.cache.Set(ctx, e.cacheKey(inv.ID), raw, e.cacheTTL)
}

func (e *Engine) invalidateCaches(ctx context.Context, invoiceID, orderID uuid.UUID) {
	if e.cache == nil {
		return
	}
	for _, key := range []string{
		fmt.Sprintf("invoices:%s", invoiceID),
		fmt.Sprintf("orders:%s", orderID),
	} {
		if err := e.cache.Delete(ctx, key); err != nil {
			e.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (e *Engine) publishPaid(ctx context.Context, inv *entity.Invoice) {
	if !e.messaging.enabled || e.publisher == nil {
		return
	}
	event := InvoicePaidEvent{
		Type:            EventInvoicePaid,
		InvoiceID:       inv.ID,
		OrderID:         inv.OrderID,
		EstablishmentID: inv.EstablishmentID,
		TotalAmount:     inv.TotalAmount,
		PaidAt:          e.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("marshal invoice paid", zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, []byte(fmt.Sprintf("invoice-%s", inv.ID)), payload); err != nil {
		e.logger.Error("publish invoice paid", zap.Error(err))
	}
}
