package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventcover/internal/clock"
	"github.com/smallbiznis/eventcover/internal/config"
	"github.com/smallbiznis/eventcover/internal/migration"
	"github.com/smallbiznis/eventcover/internal/observability"
	"github.com/smallbiznis/eventcover/internal/scheduler"
	"github.com/smallbiznis/eventcover/internal/server"
	"github.com/smallbiznis/eventcover/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// HTTP surface with checkout, reconciliation and read APIs
		server.Module,

		// Background sweeps
		scheduler.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
