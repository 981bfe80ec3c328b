package migration

import "go.uber.org/fx"

// Module provides the migrator to Fx.
var Module = fx.Provide(New)
