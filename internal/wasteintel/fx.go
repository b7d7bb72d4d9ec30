package wasteintel

import (
	"github.com/smallbiznis/wasteloop/internal/agrisense"
	"go.uber.org/fx"
)

var Module = fx.Module("wasteintel.service",
	fx.Provide(func(s *agrisense.Service) Syncer { return s }),
	fx.Provide(NewService),
)
