package events

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/messaging"
	settlementsvc "github.com/comptoirhq/comptoir/internal/service/settlement"
	stocksvc "github.com/comptoirhq/comptoir/internal/service/stock"
	validationsvc "github.com/comptoirhq/comptoir/internal/service/validation"
	"github.com/comptoirhq/comptoir/internal/worker"
)

var workerTracer = otel.Tracer("github.com/comptoirhq/comptoir/worker/events")

// Module registers the domain event worker handler.
var Module = fx.Module("worker_events",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

type envelope struct {
	Type string `json:"type"`
}

// NewEventHandler sets up a worker handler that dispatches domain events by
// their envelope type. Today the consumers only log; the dispatch gives each
// event its own decode path so richer reactions can hang off them later.
func NewEventHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.events.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			logger.Error("failed to decode event envelope", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("event.type", env.Type))

		switch env.Type {
		case validationsvc.EventOrderValidated:
			return handleOrderValidated(logger, msg.Value)
		case settlementsvc.EventInvoicePaid:
			return handleInvoicePaid(logger, msg.Value)
		case stocksvc.EventStockAlert:
			return handleStockAlert(logger, msg.Value)
		default:
			logger.Warn("unknown event type", zap.String("type", env.Type))
			return nil
		}
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}

func handleOrderValidated(logger *zap.Logger, raw []byte) error {
	var event validationsvc.OrderValidatedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Error("failed to decode order validated", zap.Error(err))
		return err
	}
	logger.Info("order validated",
		zap.String("order_id", event.OrderID.String()),
		zap.String("invoice_id", event.InvoiceID.String()),
		zap.String("establishment_id", event.EstablishmentID.String()),
	)
	return nil
}

func handleInvoicePaid(logger *zap.Logger, raw []byte) error {
	var event settlementsvc.InvoicePaidEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Error("failed to decode invoice paid", zap.Error(err))
		return err
	}
	logger.Info("invoice settled",
		zap.String("invoice_id", event.InvoiceID.String()),
		zap.String("order_id", event.OrderID.String()),
		zap.String("total", event.TotalAmount.String()),
	)
	return nil
}

func handleStockAlert(logger *zap.Logger, raw []byte) error {
	var event stocksvc.StockAlertEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Error("failed to decode stock alert", zap.Error(err))
		return err
	}
	logger.Warn("product low on stock",
		zap.String("product_id", event.ProductID.String()),
		zap.Int("available", event.AvailableQty),
		zap.Int("threshold", event.AlertThreshold),
	)
	return nil
}
