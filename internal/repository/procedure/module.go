package procedure

import "go.uber.org/fx"

// Module provides the procedure client to Fx.
var Module = fx.Provide(NewRepository)
