package agrisense

import "go.uber.org/fx"

var Module = fx.Module("agrisense",
	fx.Provide(NewHTTPClient),
	fx.Provide(NewService),
	fx.Provide(NewResyncer),
	fx.Invoke(func(*Resyncer) {}),
)
