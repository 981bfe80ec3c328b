package stock

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

var repoTracer = otel.Tracer("github.com/comptoirhq/comptoir/repository/stock")

// ErrNotFound is returned when no stock entry exists for a product.
var ErrNotFound = errors.New("stock entry not found")

// Repository encapsulates stock entries and their movement audit trail.
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

// GetEntry fetches the stock entry for one product.
func (r *Repository) GetEntry(ctx context.Context, productID uuid.UUID) (*entity.StockEntry, error) {
	ctx, span := repoTracer.Start(ctx, "StockRepository.GetEntry", trace.WithAttributes(attribute.String("product.id", productID.String())))
	defer span.End()

	entry := new(entity.StockEntry)
	err := r.reader.NewSelect().Model(entry).Where("product_id = ?", productID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return entry, nil
}

// SetQuantity writes the new available quantity for a product.
func (r *Repository) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "StockRepository.SetQuantity", trace.WithAttributes(
		attribute.String("product.id", productID.String()),
		attribute.Int("stock.quantity", quantity),
	))
	defer span.End()

	_, err := r.writer.NewUpdate().Model((*entity.StockEntry)(nil)).
		Set("available_quantity = ?", quantity).
		Set("updated_at = ?", at).
		Where("product_id = ?", productID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// MovementExists reports whether a movement was already recorded for the
// (reference, product) pair. This is the read half of the idempotency guard.
func (r *Repository) MovementExists(ctx context.Context, reference, productID uuid.UUID) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "StockRepository.MovementExists")
	defer span.End()

	exists, err := r.reader.NewSelect().Model((*entity.StockMovement)(nil)).
		Where("reference = ?", reference).
		Where("product_id = ?", productID).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return false, err
	}
	return exists, nil
}

// InsertMovement appends one movement row. The unique (reference, product_id)
// constraint backs up the existence check, so a lost race inserts nothing.
func (r *Repository) InsertMovement(ctx context.Context, m *entity.StockMovement) error {
	if m == nil {
		return errors.New("nil movement")
	}
	ctx, span := repoTracer.Start(ctx, "StockRepository.InsertMovement", trace.WithAttributes(attribute.String("product.id", m.ProductID.String())))
	defer span.End()

	_, err := r.writer.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// LowStock returns the entries at or below their alert threshold.
func (r *Repository) LowStock(ctx context.Context, establishmentID uuid.UUID) ([]*entity.StockEntry, error) {
	ctx, span := repoTracer.Start(ctx, "StockRepository.LowStock")
	defer span.End()

	var entries []*entity.StockEntry
	err := r.reader.NewSelect().Model(&entries).
		Where("establishment_id = ?", establishmentID).
		Where("available_quantity <= alert_threshold").
		Order("available_quantity ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return entries, nil
}
