package app

import (
	"go.uber.org/fx"

	"github.com/comptoirhq/comptoir/internal/cache"
	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/database"
	"github.com/comptoirhq/comptoir/internal/logger"
	"github.com/comptoirhq/comptoir/internal/messaging"
	"github.com/comptoirhq/comptoir/internal/numbering"
	"github.com/comptoirhq/comptoir/internal/observability"
	repositoryestablishment "github.com/comptoirhq/comptoir/internal/repository/establishment"
	repositoryinvoice "github.com/comptoirhq/comptoir/internal/repository/invoice"
	repositoryorder "github.com/comptoirhq/comptoir/internal/repository/order"
	repositorypayment "github.com/comptoirhq/comptoir/internal/repository/payment"
	repositoryprocedure "github.com/comptoirhq/comptoir/internal/repository/procedure"
	repositorystock "github.com/comptoirhq/comptoir/internal/repository/stock"
	repositorytable "github.com/comptoirhq/comptoir/internal/repository/table"
	httpserver "github.com/comptoirhq/comptoir/internal/server/http"
	servicesettlement "github.com/comptoirhq/comptoir/internal/service/settlement"
	servicestock "github.com/comptoirhq/comptoir/internal/service/stock"
	servicevalidation "github.com/comptoirhq/comptoir/internal/service/validation"
	"github.com/comptoirhq/comptoir/internal/tenant"
	transporthttp "github.com/comptoirhq/comptoir/internal/transport/http"
	"github.com/comptoirhq/comptoir/internal/worker"
	workerevents "github.com/comptoirhq/comptoir/internal/worker/events"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	numbering.Module,
	repositoryestablishment.Module,
	repositoryinvoice.Module,
	repositoryorder.Module,
	repositorypayment.Module,
	repositoryprocedure.Module,
	repositorystock.Module,
	repositorytable.Module,
	tenant.Module,
	servicevalidation.Module,
	servicesettlement.Module,
	servicestock.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerevents.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
