// Package session carries the operator identity for one request. The source
// system kept this in a process-wide auth singleton; here it is an explicit
// value threaded through context so every core operation states which tenant
// and operator it acts for.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

// Roles known to the platform.
const (
	RoleCounter = "counter"
	RoleServer  = "server"
	RoleOwner   = "owner"
)

// Session identifies the tenant and operator behind an operation.
type Session struct {
	EstablishmentID uuid.UUID
	OperatorID      uuid.UUID
	Role            string
}

// Valid reports whether the session names a tenant and an operator.
func (s Session) Valid() bool {
	return s.EstablishmentID != uuid.Nil && s.OperatorID != uuid.Nil
}

type contextKey struct{}

// NewContext returns ctx carrying the session.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext extracts the session from ctx.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Require extracts a valid session or fails with a bad request error.
func Require(ctx context.Context) (Session, error) {
	s, ok := FromContext(ctx)
	if !ok || !s.Valid() {
		return Session{}, errorbank.BadRequest("missing operator session")
	}
	return s, nil
}
