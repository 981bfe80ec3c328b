package validation

import "go.uber.org/fx"

// Module provides the validation coordinator to Fx.
var Module = fx.Provide(NewCoordinator)
