package valuation

import "go.uber.org/fx"

var Module = fx.Module("valuation",
	fx.Provide(NewCalculator),
)
