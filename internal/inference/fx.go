package inference

import "go.uber.org/fx"

var Module = fx.Module("inference",
	fx.Provide(NewClient),
)
