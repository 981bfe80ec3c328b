package validation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/entity"
	"github.com/comptoirhq/comptoir/internal/messaging"
	invoicerepo "github.com/comptoirhq/comptoir/internal/repository/invoice"
	procedurerepo "github.com/comptoirhq/comptoir/internal/repository/procedure"
	stocksvc "github.com/comptoirhq/comptoir/internal/service/stock"
	"github.com/comptoirhq/comptoir/internal/session"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

type orderStoreMock struct {
	getByID       func(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	markValidated func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

func (m *orderStoreMock) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	return m.getByID(ctx, id)
}

func (m *orderStoreMock) MarkValidated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if m.markValidated == nil {
		return true, nil
	}
	return m.markValidated(ctx, id, at)
}

type invoiceStoreMock struct {
	getByOrderID func(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error)
	insert       func(ctx context.Context, inv *entity.Invoice) error
}

func (m *invoiceStoreMock) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error) {
	if m.getByOrderID == nil {
		return nil, invoicerepo.ErrNotFound
	}
	return m.getByOrderID(ctx, orderID)
}

func (m *invoiceStoreMock) Insert(ctx context.Context, inv *entity.Invoice) error {
	if m.insert == nil {
		return nil
	}
	return m.insert(ctx, inv)
}

type stockConsumerMock struct {
	decrement func(ctx context.Context, sess session.Session, req stocksvc.DecrementRequest) error
}

func (m *stockConsumerMock) Decrement(ctx context.Context, sess session.Session, req stocksvc.DecrementRequest) error {
	if m.decrement == nil {
		return nil
	}
	return m.decrement(ctx, sess, req)
}

type tableStoreMock struct {
	setStatus func(ctx context.Context, id uuid.UUID, status string) error
}

func (m *tableStoreMock) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	if m.setStatus == nil {
		return nil
	}
	return m.setStatus(ctx, id, status)
}

type procedureMock struct {
	validateOrder func(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error)
	supports      func(ctx context.Context) (bool, error)
}

func (m *procedureMock) ValidateOrder(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error) {
	return m.validateOrder(ctx, orderID)
}

func (m *procedureMock) SupportsValidateOrder(ctx context.Context) (bool, error) {
	if m.supports == nil {
		return true, nil
	}
	return m.supports(ctx)
}

type publisherMock struct {
	published [][]byte
}

func (m *publisherMock) Publish(ctx context.Context, key []byte, value []byte) error {
	m.published = append(m.published, value)
	return nil
}

func (m *publisherMock) Consume(ctx context.Context, handler messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *publisherMock) Topic() string { return "test" }

type numbererMock struct{}

func (numbererMock) Next(uuid.UUID) string { return "FAC-000042" }

type gateMock struct {
	check func(ctx context.Context, establishmentID uuid.UUID) error
}

func (m *gateMock) Check(ctx context.Context, establishmentID uuid.UUID) error {
	if m.check == nil {
		return nil
	}
	return m.check(ctx, establishmentID)
}

func testConfig() config.Config {
	return config.Config{
		Cache:      config.Cache{DefaultTTL: time.Minute},
		Validation: config.Validation{AtomicEnabled: true, ProbeTimeout: time.Second},
		Stock:      config.Stock{AllowNegative: true, AlertsEnabled: true},
		Settlement: config.Settlement{CASAttempts: 3, OverdueAfter: 24 * time.Hour},
		Retry:      config.Retry{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}
}

func testSession(establishmentID uuid.UUID) session.Session {
	return session.Session{
		EstablishmentID: establishmentID,
		OperatorID:      uuid.New(),
		Role:            session.RoleCounter,
	}
}

func pendingOrder(establishmentID uuid.UUID) *entity.Order {
	orderID := uuid.New()
	productID := uuid.New()
	return &entity.Order{
		ID:              orderID,
		EstablishmentID: establishmentID,
		TableID:         uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Number:          "CMD-0001",
		TotalAmount:     decimal.NewFromFloat(18.50),
		Status:          entity.OrderStatusPending,
		Items: []*entity.OrderItem{
			{ID: uuid.New(), OrderID: orderID, ProductID: productID, ProductName: "Espresso", Quantity: 2, UnitPrice: decimal.NewFromFloat(2.50)},
		},
	}
}

func newCoordinator(deps Deps, cfg config.Config) *Coordinator {
	if deps.Numberer == nil {
		deps.Numberer = numbererMock{}
	}
	if deps.Gate == nil {
		deps.Gate = &gateMock{}
	}
	if deps.Tables == nil {
		deps.Tables = &tableStoreMock{}
	}
	if deps.Invoices == nil {
		deps.Invoices = &invoiceStoreMock{}
	}
	if deps.Stocks == nil {
		deps.Stocks = &stockConsumerMock{}
	}
	return NewCoordinatorWith(deps, cfg, zap.NewNop())
}

func TestValidateAtomicSuccess(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)
	invoiceID := uuid.New()

	markCalls := 0
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
			markValidated: func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
				markCalls++
				return true, nil
			},
		},
		Procs: &procedureMock{
			validateOrder: func(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error) {
				return &procedurerepo.ValidateOrderResult{
					Success:   true,
					InvoiceID: uuid.NullUUID{UUID: invoiceID, Valid: true},
				}, nil
			},
		},
	}, testConfig())

	outcome, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.InvoiceID != invoiceID {
		t.Errorf("invoice id = %s, want %s", outcome.InvoiceID, invoiceID)
	}
	if markCalls != 0 {
		t.Errorf("fallback ran alongside the atomic path: %d MarkValidated calls", markCalls)
	}
}

func TestValidateAtomicBusinessRejection(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)

	markCalls := 0
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
			markValidated: func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
				markCalls++
				return true, nil
			},
		},
		Procs: &procedureMock{
			validateOrder: func(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error) {
				return &procedurerepo.ValidateOrderResult{Success: false, Error: "order is not pending"}, nil
			},
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if !errorbank.IsKind(err, errorbank.KindUnprocessableEntity) {
		t.Fatalf("error = %v, want unprocessable", err)
	}
	if markCalls != 0 {
		t.Errorf("business rejection must not trigger the fallback, got %d MarkValidated calls", markCalls)
	}
}

func TestValidateTransportErrorFallsBack(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)
	item := order.Items[0]

	var consumed []stocksvc.DecrementRequest
	var insertedInvoice *entity.Invoice
	tableOccupied := false

	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
		Invoices: &invoiceStoreMock{
			insert: func(ctx context.Context, inv *entity.Invoice) error {
				insertedInvoice = inv
				return nil
			},
		},
		Stocks: &stockConsumerMock{
			decrement: func(ctx context.Context, sess session.Session, req stocksvc.DecrementRequest) error {
				consumed = append(consumed, req)
				return nil
			},
		},
		Tables: &tableStoreMock{
			setStatus: func(ctx context.Context, id uuid.UUID, status string) error {
				if status == entity.TableStatusOccupied {
					tableOccupied = true
				}
				return nil
			},
		},
		Procs: &procedureMock{
			validateOrder: func(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error) {
				return nil, errors.New("connection reset")
			},
		},
	}, testConfig())

	outcome, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(consumed) != 1 {
		t.Fatalf("ledger decremented %d lines, want 1", len(consumed))
	}
	if consumed[0].ProductID != item.ProductID || consumed[0].Quantity != item.Quantity || consumed[0].OrderID != order.ID {
		t.Errorf("decrement = %+v, want the order line keyed by the order id", consumed[0])
	}
	if !tableOccupied {
		t.Error("table was not occupied")
	}
	if insertedInvoice == nil {
		t.Fatal("no invoice created")
	}
	if !insertedInvoice.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("invoice total = %s, want %s", insertedInvoice.TotalAmount, order.TotalAmount)
	}
	if !insertedInvoice.RemainingAmount.Equal(order.TotalAmount) {
		t.Errorf("invoice remaining = %s, want %s", insertedInvoice.RemainingAmount, order.TotalAmount)
	}
	if outcome.InvoiceID != insertedInvoice.ID {
		t.Errorf("outcome invoice = %s, want %s", outcome.InvoiceID, insertedInvoice.ID)
	}
}

func TestValidateLostRaceConflict(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)

	invoiceInserts := 0
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
			markValidated: func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
				return false, nil
			},
		},
		Invoices: &invoiceStoreMock{
			insert: func(ctx context.Context, inv *entity.Invoice) error {
				invoiceInserts++
				return nil
			},
		},
		Procs: &procedureMock{
			supports: func(ctx context.Context) (bool, error) { return false, nil },
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if !errorbank.IsKind(err, errorbank.KindConflict) {
		t.Fatalf("error = %v, want conflict", err)
	}
	if invoiceInserts != 0 {
		t.Errorf("loser of the race created %d invoices, want 0", invoiceInserts)
	}
}

func TestValidateAlreadyValidatedReturnsInvoice(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)
	order.Status = entity.OrderStatusValidated
	existing := &entity.Invoice{ID: uuid.New(), OrderID: order.ID, EstablishmentID: estID}

	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
		Invoices: &invoiceStoreMock{
			getByOrderID: func(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error) {
				return existing, nil
			},
		},
		Procs: &procedureMock{
			validateOrder: func(ctx context.Context, orderID uuid.UUID) (*procedurerepo.ValidateOrderResult, error) {
				t.Fatal("procedure must not run for an already validated order")
				return nil, nil
			},
		},
	}, testConfig())

	outcome, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.InvoiceID != existing.ID {
		t.Errorf("invoice = %s, want existing %s", outcome.InvoiceID, existing.ID)
	}
}

func TestValidateEventCarriesPersistedTimestamp(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)

	cfg := testConfig()
	cfg.Messaging.Enabled = true

	var markedAt time.Time
	publisher := &publisherMock{}
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
			markValidated: func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
				markedAt = at
				return true, nil
			},
		},
		Procs: &procedureMock{
			supports: func(ctx context.Context) (bool, error) { return false, nil },
		},
		Publisher: publisher,
	}, cfg)

	if _, err := coord.Validate(context.Background(), testSession(estID), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.published))
	}
	var event OrderValidatedEvent
	if err := json.Unmarshal(publisher.published[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if !event.ValidatedAt.Equal(markedAt) {
		t.Errorf("event validated_at = %s, want the written %s", event.ValidatedAt, markedAt)
	}
}

func TestValidateReplayPublishesOriginalTimestamp(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)
	order.Status = entity.OrderStatusValidated
	original := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	order.ValidatedAt = &original
	existing := &entity.Invoice{ID: uuid.New(), OrderID: order.ID, EstablishmentID: estID}

	cfg := testConfig()
	cfg.Messaging.Enabled = true

	publisher := &publisherMock{}
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
		Invoices: &invoiceStoreMock{
			getByOrderID: func(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error) {
				return existing, nil
			},
		},
		Publisher: publisher,
	}, cfg)

	if _, err := coord.Validate(context.Background(), testSession(estID), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.published))
	}
	var event OrderValidatedEvent
	if err := json.Unmarshal(publisher.published[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if !event.ValidatedAt.Equal(original) {
		t.Errorf("replayed event validated_at = %s, want the persisted %s", event.ValidatedAt, original)
	}
}

func TestValidateCompletedOrderConflicts(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)
	order.Status = entity.OrderStatusCompleted

	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if !errorbank.IsKind(err, errorbank.KindConflict) {
		t.Fatalf("error = %v, want conflict", err)
	}
}

func TestValidateInsufficientStockBlocked(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)

	marked := 0
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
			markValidated: func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
				marked++
				return true, nil
			},
		},
		Stocks: &stockConsumerMock{
			decrement: func(ctx context.Context, sess session.Session, req stocksvc.DecrementRequest) error {
				return errorbank.Unprocessable("insufficient stock for " + req.ProductName)
			},
		},
		Procs: &procedureMock{
			supports: func(ctx context.Context) (bool, error) { return false, nil },
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if !errorbank.IsKind(err, errorbank.KindUnprocessableEntity) {
		t.Fatalf("error = %v, want unprocessable", err)
	}
	if marked != 0 {
		t.Errorf("order validated despite the stock block, %d calls", marked)
	}
}

func TestValidatePartialWhenInvoiceFails(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)

	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
		Invoices: &invoiceStoreMock{
			insert: func(ctx context.Context, inv *entity.Invoice) error {
				return errors.New("disk full")
			},
		},
		Procs: &procedureMock{
			supports: func(ctx context.Context) (bool, error) { return false, nil },
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if !errorbank.IsKind(err, errorbank.KindPartial) {
		t.Fatalf("error = %v, want partial", err)
	}
}

func TestValidateInvoiceDuplicateResolvedByReread(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(estID)
	existing := &entity.Invoice{ID: uuid.New(), OrderID: order.ID, EstablishmentID: estID}

	reads := 0
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
		Invoices: &invoiceStoreMock{
			getByOrderID: func(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error) {
				reads++
				if reads == 1 {
					return nil, invoicerepo.ErrNotFound
				}
				return existing, nil
			},
			insert: func(ctx context.Context, inv *entity.Invoice) error {
				return invoicerepo.ErrDuplicate
			},
		},
		Procs: &procedureMock{
			supports: func(ctx context.Context) (bool, error) { return false, nil },
		},
	}, testConfig())

	outcome, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.InvoiceID != existing.ID {
		t.Errorf("invoice = %s, want the concurrently created %s", outcome.InvoiceID, existing.ID)
	}
}

func TestValidateForeignOrderNotFound(t *testing.T) {
	estID := uuid.New()
	order := pendingOrder(uuid.New())

	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) { return order, nil },
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), order.ID)
	if !errorbank.IsKind(err, errorbank.KindNotFound) {
		t.Fatalf("error = %v, want not_found", err)
	}
}

func TestValidateSuspendedTenantRejected(t *testing.T) {
	estID := uuid.New()

	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
				t.Fatal("order must not be loaded for a suspended tenant")
				return nil, nil
			},
		},
		Gate: &gateMock{
			check: func(ctx context.Context, establishmentID uuid.UUID) error {
				return errorbank.Unprocessable("establishment suspended or subscription expired")
			},
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), testSession(estID), uuid.New())
	if !errorbank.IsKind(err, errorbank.KindUnprocessableEntity) {
		t.Fatalf("error = %v, want unprocessable", err)
	}
}

func TestValidateMissingSessionRejected(t *testing.T) {
	coord := newCoordinator(Deps{
		Orders: &orderStoreMock{
			getByID: func(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
				t.Fatal("order must not be loaded without a session")
				return nil, nil
			},
		},
	}, testConfig())

	_, err := coord.Validate(context.Background(), session.Session{}, uuid.New())
	if !errorbank.IsKind(err, errorbank.KindBadRequest) {
		t.Fatalf("error = %v, want bad_request", err)
	}
}
