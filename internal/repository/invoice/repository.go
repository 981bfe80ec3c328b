package invoice

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comptoirhq/comptoir/internal/database"
	"github.com/comptoirhq/comptoir/internal/entity"
)

var repoTracer = otel.Tracer("github.com/comptoirhq/comptoir/repository/invoice")

// Errors surfaced by the invoice repository.
var (
	ErrNotFound  = errors.New("invoice not found")
	ErrDuplicate = errors.New("invoice already exists")
)

// Repository encapsulates read/write access for invoices.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// GetByID fetches an invoice by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.GetByID", trace.WithAttributes(attribute.String("invoice.id", id.String())))
	defer span.End()

	inv := new(entity.Invoice)
	err := r.reader.NewSelect().Model(inv).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return inv, nil
}

// GetByOrderID fetches the invoice emitted for an order, if any.
func (r *Repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entity.Invoice, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.GetByOrderID", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	inv := new(entity.Invoice)
	err := r.reader.NewSelect().Model(inv).Where("order_id = ?", orderID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return inv, nil
}

// Insert persists a new invoice. A unique violation on the order reference or
// the invoice number surfaces as ErrDuplicate so the caller can regenerate the
// number or treat the insert as already done.
func (r *Repository) Insert(ctx context.Context, inv *entity.Invoice) error {
	if inv == nil {
		return errors.New("nil invoice")
	}
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.Insert", trace.WithAttributes(attribute.String("invoice.number", inv.Number)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(inv).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
	}
	return err
}

// UpdateAmountsCAS writes new paid/remaining amounts and status, guarded by a
// compare-and-swap on the current paid amount. Returns false when a concurrent
// settlement got there first; the caller re-reads and retries.
func (r *Repository) UpdateAmountsCAS(ctx context.Context, id uuid.UUID, expectedPaid, newPaid, newRemaining decimal.Decimal, status string, paidAt *time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.UpdateAmountsCAS", trace.WithAttributes(attribute.String("invoice.id", id.String())))
	defer span.End()

	q := r.writer.NewUpdate().Model((*entity.Invoice)(nil)).
		Set("paid_amount = ?", newPaid).
		Set("remaining_amount = ?", newRemaining).
		Set("status = ?", status).
		Where("id = ?", id).
		Where("paid_amount = ?", expectedPaid)
	if paidAt != nil {
		q = q.Set("paid_at = ?", *paidAt)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListOverdue returns unpaid invoices generated before the cutoff.
func (r *Repository) ListOverdue(ctx context.Context, establishmentID uuid.UUID, cutoff time.Time) ([]*entity.Invoice, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.ListOverdue")
	defer span.End()

	var invoices []*entity.Invoice
	err := r.reader.NewSelect().Model(&invoices).
		Where("establishment_id = ?", establishmentID).
		Where("status != ?", entity.InvoiceStatusPaid).
		Where("generated_at < ?", cutoff).
		Order("generated_at ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return invoices, nil
}
