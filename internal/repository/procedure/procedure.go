// Package procedure calls server-side procedures. These are the preferred
// write primitive: one remote call that the server executes as a unit, used by
// the validation coordinator before it considers the manual fallback.
package procedure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comptoirhq/comptoir/internal/database"
)

var repoTracer = otel.Tracer("github.com/comptoirhq/comptoir/repository/procedure")

const validateOrderProc = "validate_order"

// ValidateOrderResult is the typed shape of the validate_order response. The
// procedure reports business failures in-band rather than as call errors.
type ValidateOrderResult struct {
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	InvoiceID   uuid.NullUUID `json:"invoice_id,omitempty"`
	ValidatedAt time.Time     `json:"validated_at,omitempty"`
}

// Repository invokes stored procedures over the writer connection.
type Repository struct {
	writer *bun.DB
}

// NewRepository wires the procedure client.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// ValidateOrder runs the atomic validation procedure: stock decrement, table
// update and invoice creation in one server-side unit. A returned error means
// the call itself failed (transport, unknown); a business rejection comes back
// inside the result.
func (r *Repository) ValidateOrder(ctx context.Context, orderID uuid.UUID) (*ValidateOrderResult, error) {
	ctx, span := repoTracer.Start(ctx, "ProcedureRepository.ValidateOrder", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	var raw []byte
	err := r.writer.NewRaw("SELECT ?0(?1)", bun.Ident(validateOrderProc), orderID).Scan(ctx, &raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "procedure call failed")
		return nil, err
	}

	var result ValidateOrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed procedure response")
		return nil, fmt.Errorf("decode %s response: %w", validateOrderProc, err)
	}
	return &result, nil
}

// SupportsValidateOrder probes whether the atomic procedure is installed. The
// coordinator uses this capability check, not call failures, to pick a
// strategy.
func (r *Repository) SupportsValidateOrder(ctx context.Context) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ProcedureRepository.SupportsValidateOrder")
	defer span.End()

	var exists bool
	err := r.writer.NewRaw("SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = ?)", validateOrderProc).Scan(ctx, &exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return false, err
	}
	return exists, nil
}
