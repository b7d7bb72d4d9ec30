package pickup

import (
	"github.com/smallbiznis/wasteloop/internal/agrisense"
	"github.com/smallbiznis/wasteloop/internal/pickup/repository"
	"github.com/smallbiznis/wasteloop/internal/pickup/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pickup.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(s *agrisense.Service) service.Syncer { return s }),
	fx.Provide(service.New),
)
