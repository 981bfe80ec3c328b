// Package tenant gates every core operation on the tenant's activity and
// subscription state.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/comptoirhq/comptoir/internal/cache"
	"github.com/comptoirhq/comptoir/internal/entity"
	repo "github.com/comptoirhq/comptoir/internal/repository/establishment"
	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

var gateTracer = otel.Tracer("github.com/comptoirhq/comptoir/tenant")

// gateTTL keeps the verdict fresh enough that a suspension takes effect
// within a minute while sparing one read per operation.
const gateTTL = 30 * time.Second

// EstablishmentStore is the read access the gate needs.
type EstablishmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Establishment, error)
}

// Gate checks that an establishment is active with a live subscription.
type Gate struct {
	store  EstablishmentStore
	cache  cache.Store
	logger *zap.Logger
}

// Params defines dependencies for constructing Gate.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Logger     *zap.Logger
}

// Module provides the tenant gate to Fx.
var Module = fx.Provide(NewGate)

// NewGate wires a Gate from the Fx graph.
func NewGate(p Params) *Gate {
	return &Gate{store: p.Repository, cache: p.Cache, logger: p.Logger}
}

// NewGateWith builds a Gate from explicit collaborators, mainly for tests.
func NewGateWith(store EstablishmentStore, c cache.Store, logger *zap.Logger) *Gate {
	return &Gate{store: store, cache: c, logger: logger}
}

type verdict struct {
	Operational bool `json:"operational"`
}

// Check fails with an unprocessable error when the establishment is suspended
// or its subscription lapsed, and not_found when it does not exist.
func (g *Gate) Check(ctx context.Context, establishmentID uuid.UUID) error {
	ctx, span := gateTracer.Start(ctx, "TenantGate.Check", trace.WithAttributes(attribute.String("establishment.id", establishmentID.String())))
	defer span.End()

	key := g.cacheKey(establishmentID)
	if g.cache != nil {
		if raw, err := g.cache.Get(ctx, key); err == nil {
			var v verdict
			if json.Unmarshal(raw, &v) == nil {
				return g.result(v.Operational)
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			if g.logger != nil {
				g.logger.Warn("tenant gate cache read failed", zap.Error(err))
			}
		}
	}

	est, err := g.store.GetByID(ctx, establishmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("establishment not found")
		}
		return errorbank.Internal("failed to load establishment", errorbank.WithCause(err))
	}

	operational := est.Operational()
	if g.cache != nil {
		if raw, err := json.Marshal(verdict{Operational: operational}); err == nil {
			if err := g.cache.Set(ctx, key, raw, gateTTL); err != nil && g.logger != nil {
				g.logger.Warn("tenant gate cache write failed", zap.Error(err))
			}
		}
	}

	return g.result(operational)
}

func (g *Gate) result(operational bool) error {
	if operational {
		return nil
	}
	return errorbank.Unprocessable("establishment suspended or subscription expired")
}

func (g *Gate) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("tenant:gate:%s", id)
}
