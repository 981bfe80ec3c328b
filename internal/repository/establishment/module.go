package establishment

import "go.uber.org/fx"

// Module provides the establishment repository to Fx.
var Module = fx.Provide(NewRepository)
