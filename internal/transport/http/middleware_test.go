package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/session"
)

func TestSessionMiddlewareLiftsHeaders(t *testing.T) {
	estID := uuid.New()
	opID := uuid.New()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderEstablishmentID, estID.String())
	req.Header.Set(HeaderOperatorID, opID.String())
	req.Header.Set(HeaderOperatorRole, session.RoleCounter)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got session.Session
	var ok bool
	handler := SessionMiddleware()(func(c echo.Context) error {
		got, ok = session.FromContext(c.Request().Context())
		return nil
	})

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("no session in request context")
	}
	if got.EstablishmentID != estID || got.OperatorID != opID || got.Role != session.RoleCounter {
		t.Errorf("session = %+v", got)
	}
}

func TestSessionMiddlewareIgnoresBadHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderEstablishmentID, "not-a-uuid")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := SessionMiddleware()(func(c echo.Context) error {
		if _, ok := session.FromContext(c.Request().Context()); ok {
			t.Error("session installed from malformed headers")
		}
		return nil
	})

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
