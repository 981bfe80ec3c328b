package stock

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/comptoirhq/comptoir/internal/dto"
	"github.com/comptoirhq/comptoir/internal/presentation/http/response"
	service "github.com/comptoirhq/comptoir/internal/service/stock"
	"github.com/comptoirhq/comptoir/internal/session"
)

var httpTracer = otel.Tracer("github.com/comptoirhq/comptoir/transport/http/stock")

// Handler exposes stock alert reads over HTTP.
type Handler struct {
	svc *service.Ledger
}

// NewHandler constructs a stock Handler.
func NewHandler(svc *service.Ledger) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/stock/alerts", h.alerts)
}

func (h *Handler) alerts(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "stock.alerts")
	defer span.End()

	sess, err := session.Require(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	entries, err := h.svc.Alerts(ctx, sess)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.StockAlert, 0, len(entries))
	for _, entry := range entries {
		out = append(out, dto.StockAlert{
			ProductID:         entry.ProductID,
			AvailableQuantity: entry.AvailableQty,
			Threshold:         entry.AlertThreshold,
		})
	}
	return b.WithData(out).Build()
}
