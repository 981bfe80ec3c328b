package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comptoirhq/comptoir/internal/database"
	"github.com/comptoirhq/comptoir/internal/entity"
)

var repoTracer = otel.Tracer("github.com/comptoirhq/comptoir/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Repository encapsulates read/write access for orders.
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

// GetByID fetches an order with its line items.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// MarkValidated flips a pending order to validated. The update is conditional
// on the current status so a concurrent validator loses cleanly; the returned
// bool reports whether this caller won.
func (r *Repository) MarkValidated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkValidated", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusValidated).
		Set("validated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", entity.OrderStatusPending).
		Exec(ctx)
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

// MarkCompleted moves a validated order to completed as part of the settlement
// cascade. Already-completed orders are left untouched.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkCompleted", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusCompleted).
		Where("id = ?", id).
		Where("status = ?", entity.OrderStatusValidated).
		Exec(ctx)
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
