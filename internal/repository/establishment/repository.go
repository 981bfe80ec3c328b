package establishment

import (
	"context"
	"database/sql"
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

var repoTracer = otel.Tracer("github.com/comptoirhq/comptoir/repository/establishment")

// ErrNotFound is returned when an establishment is missing.
var ErrNotFound = errors.New("establishment not found")

// Repository reads tenant records. Tenant lifecycle is managed elsewhere; this
// service only consumes the activity gate.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// GetByID fetches an establishment by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Establishment, error) {
	ctx, span := repoTracer.Start(ctx, "EstablishmentRepository.GetByID", trace.WithAttributes(attribute.String("establishment.id", id.String())))
	defer span.End()

	est := new(entity.Establishment)
	err := r.reader.NewSelect().Model(est).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return est, nil
}
