package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comptoirhq/comptoir/internal/database"
	"github.com/comptoirhq/comptoir/internal/entity"
)

var repoTracer = otel.Tracer("github.com/comptoirhq/comptoir/repository/payment")

// Repository encapsulates the append-only payment store.
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

// Insert appends one payment row. Payments are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, p *entity.Payment) error {
	if p == nil {
		return errors.New("nil payment")
	}
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.Insert", trace.WithAttributes(attribute.String("invoice.id", p.InvoiceID.String())))
	defer span.End()

	_, err := r.writer.NewInsert().Model(p).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ListByInvoice returns the payments recorded against an invoice, oldest first.
func (r *Repository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*entity.Payment, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.ListByInvoice", trace.WithAttributes(attribute.String("invoice.id", invoiceID.String())))
	defer span.End()

	var payments []*entity.Payment
	err := r.reader.NewSelect().Model(&payments).
		Where("invoice_id = ?", invoiceID).
		Order("recorded_at ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return payments, nil
}
