package migration

import (
	"github.com/smallbiznis/racepay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch cfg.DBType {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		case "sqlite":
			return ApplySchema(conn)
		default:
			log.Warn("schema migrations skipped; manage schema externally", zap.String("db_type", cfg.DBType))
			return nil
		}
	}),
)
