package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/migration"
	"github.com/smallbiznis/wasteloop/internal/observability"
	"github.com/smallbiznis/wasteloop/internal/server"
	"github.com/smallbiznis/wasteloop/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domains and HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
