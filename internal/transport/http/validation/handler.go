package validation

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/comptoirhq/comptoir/internal/dto"
	"github.com/comptoirhq/comptoir/internal/entity"
	"github.com/comptoirhq/comptoir/internal/presentation/http/response"
	service "github.com/comptoirhq/comptoir/internal/service/validation"
	"github.com/comptoirhq/comptoir/internal/session"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/comptoirhq/comptoir/transport/http/validation")

// Handler exposes order validation over HTTP.
type Handler struct {
	svc *service.Coordinator
}

// NewHandler constructs a validation Handler.
func NewHandler(svc *service.Coordinator) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/orders/:id/validate", h.validate)
}

func (h *Handler) validate(c echo.Context) error {
	b := response.New(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid order id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.validate", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	sess, err := session.Require(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	outcome, err := h.svc.Validate(ctx, sess, orderID)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.ValidationResponse{
		OrderID:   outcome.OrderID,
		InvoiceID: outcome.InvoiceID,
		Status:    entity.OrderStatusValidated,
	}).Build()
}
