package main

import (
	"go.uber.org/fx"

	"github.com/comptoirhq/comptoir/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
