package session

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

func TestContextRoundTrip(t *testing.T) {
	want := Session{EstablishmentID: uuid.New(), OperatorID: uuid.New(), Role: RoleServer}

	ctx := NewContext(context.Background(), want)
	got, ok := FromContext(ctx)
	if !ok || got != want {
		t.Fatalf("FromContext = %+v, %v; want %+v, true", got, ok, want)
	}
}

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !errorbank.IsKind(err, errorbank.KindBadRequest) {
		t.Errorf("empty context: error = %v, want bad_request", err)
	}

	ctx := NewContext(context.Background(), Session{EstablishmentID: uuid.New()})
	if _, err := Require(ctx); !errorbank.IsKind(err, errorbank.KindBadRequest) {
		t.Errorf("missing operator: error = %v, want bad_request", err)
	}

	full := Session{EstablishmentID: uuid.New(), OperatorID: uuid.New(), Role: RoleCounter}
	got, err := Require(NewContext(context.Background(), full))
	if err != nil || got != full {
		t.Errorf("Require = %+v, %v; want %+v, nil", got, err, full)
	}
}
