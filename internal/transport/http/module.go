package http

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	settlementtransport "github.com/comptoirhq/comptoir/internal/transport/http/settlement"
	stocktransport "github.com/comptoirhq/comptoir/internal/transport/http/stock"
	validationtransport "github.com/comptoirhq/comptoir/internal/transport/http/validation"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	fx.Invoke(func(e *echo.Echo) {
		e.Use(SessionMiddleware())
	}),
	validationtransport.Module,
	settlementtransport.Module,
	stocktransport.Module,
)
