package settlement

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/comptoirhq/comptoir/internal/dto"
	"github.com/comptoirhq/comptoir/internal/entity"
	"github.com/comptoirhq/comptoir/internal/presentation/http/response"
	service "github.com/comptoirhq/comptoir/internal/service/settlement"
	"github.com/comptoirhq/comptoir/internal/session"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/comptoirhq/comptoir/transport/http/settlement")

// Handler exposes invoice and payment endpoints over HTTP.
type Handler struct {
	svc *service.Engine
}

// NewHandler constructs a settlement Handler.
func NewHandler(svc *service.Engine) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/invoices")
	g.GET("/overdue", h.listOverdue)
	g.GET("/:id", h.getInvoice)
	g.GET("/:id/payments", h.listPayments)
	g.POST("/:id/payments", h.recordPayment)
}

func (h *Handler) recordPayment(c echo.Context) error {
	b := response.New(c)

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid invoice id", errorbank.WithCause(err))).Build()
	}

	var payload dto.RecordPaymentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.recordPayment", trace.WithAttributes(
		attribute.String("invoice.id", invoiceID.String()),
		attribute.String("payment.method", payload.Method),
	))
	defer span.End()

	sess, err := session.Require(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	outcome, err := h.svc.RecordPayment(ctx, sess, invoiceID, payload.Amount, payload.Method, payload.Reference)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.PaymentResponse{
		PaymentID:    outcome.PaymentID,
		NewStatus:    outcome.NewStatus,
		NewRemaining: outcome.NewRemaining,
	}).Build()
}

func (h *Handler) getInvoice(c echo.Context) error {
	b := response.New(c)

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid invoice id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.get", trace.WithAttributes(attribute.String("invoice.id", invoiceID.String())))
	defer span.End()

	sess, err := session.Require(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	inv, err := h.svc.GetInvoice(ctx, sess, invoiceID)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toInvoiceDTO(inv)).Build()
}

func (h *Handler) listPayments(c echo.Context) error {
	b := response.New(c)

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid invoice id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.listPayments", trace.WithAttributes(attribute.String("invoice.id", invoiceID.String())))
	defer span.End()

	sess, err := session.Require(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	payments, err := h.svc.ListPayments(ctx, sess, invoiceID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.RecordedPayment, 0, len(payments))
	for _, p := range payments {
		out = append(out, dto.RecordedPayment{
			ID:         p.ID,
			Amount:     p.Amount,
			Method:     p.Method,
			Reference:  p.Reference,
			RecordedAt: p.RecordedAt,
		})
	}
	return b.WithData(out).Build()
}

func (h *Handler) listOverdue(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.listOverdue")
	defer span.End()

	sess, err := session.Require(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	invoices, err := h.svc.ListOverdue(ctx, sess)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OverdueInvoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, dto.OverdueInvoice{
			ID:              inv.ID,
			Number:          inv.Number,
			TotalAmount:     inv.TotalAmount,
			RemainingAmount: inv.RemainingAmount,
			GeneratedAt:     inv.GeneratedAt,
			Status:          inv.Status,
		})
	}
	return b.WithData(out).Build()
}

func toInvoiceDTO(inv *entity.Invoice) dto.InvoiceResponse {
	return dto.InvoiceResponse{
		ID:              inv.ID,
		OrderID:         inv.OrderID,
		Number:          inv.Number,
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		RemainingAmount: inv.RemainingAmount,
		Status:          inv.Status,
		GeneratedAt:     inv.GeneratedAt,
		PaidAt:          inv.PaidAt,
	}
}
