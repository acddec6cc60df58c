package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventcover/internal/clock"
	"github.com/smallbiznis/eventcover/internal/config"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	"github.com/smallbiznis/eventcover/internal/seed"
	"github.com/smallbiznis/eventcover/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("schema migrations disabled")
			return nil
		}
		if cfg.DBType != db.TypePostgres {
			log.Warn("schema migrations only ship for postgres", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, quotes quotedomain.Repository, clk clock.Clock, log *zap.Logger) error {
		if !cfg.SeedDemoData || cfg.IsProduction() {
			return nil
		}
		q, err := seed.EnsureDemoQuote(context.Background(), conn, node, quotes, clk.Now())
		if err != nil {
			return err
		}
		log.Info("demo quote ready", zap.String("quote_id", q.ID.String()), zap.String("quote_number", q.QuoteNumber))
		return nil
	}),
)
