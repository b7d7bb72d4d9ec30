package wasteledger

import (
	"github.com/smallbiznis/wasteloop/internal/wasteledger/repository"
	"github.com/smallbiznis/wasteloop/internal/wasteledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wasteledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
