package http

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/session"
)

// Headers carrying the operator identity. Authentication itself happens at the
// edge; by the time a request reaches this service the gateway has resolved
// the operator and forwards these values.
const (
	HeaderEstablishmentID = "X-Establishment-ID"
	HeaderOperatorID      = "X-Operator-ID"
	HeaderOperatorRole    = "X-Operator-Role"
)

// SessionMiddleware lifts the identity headers into the request context. It
// never rejects; operations decide whether they require a session.
func SessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			estID, estErr := uuid.Parse(c.Request().Header.Get(HeaderEstablishmentID))
			opID, opErr := uuid.Parse(c.Request().Header.Get(HeaderOperatorID))
			if estErr != nil || opErr != nil {
				return next(c)
			}
			sess := session.Session{
				EstablishmentID: estID,
				OperatorID:      opID,
				Role:            c.Request().Header.Get(HeaderOperatorRole),
			}
			ctx := session.NewContext(c.Request().Context(), sess)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
