package db

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/fatflowers/donations/internal/models"
	cfgpkg "github.com/fatflowers/donations/pkg/config"
	gormzap "github.com/fatflowers/donations/pkg/gormlog"
)

func gormConfig(l *zap.SugaredLogger, verbose bool) *gorm.Config {
	return &gorm.Config{
		Logger:  gormzap.New(l, verbose),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), gormConfig(l, cfg.Env == cfgpkg.EnvDev))
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		l.Errorf("failed to install gorm tracing: %v", err)
		return nil, err
	}
	l.Infow("connected to postgres via DSN")
	return db, nil
}

// Module provides the connection only; schema changes run through the
// migrate command or MigrateOnStart.
var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(registerDBClose),
)

// MigrateOnStart runs AutoMigrate as part of application start, used by serve
// when --migrate is set.
var MigrateOnStart = fx.Invoke(AutoMigrate)

// AllModels lists every table owned by the service, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Cause{},
		&models.Donation{},
		&models.Subscription{},
		&models.SubscriptionCharge{},
		&models.DonationEventOutbox{},
		&models.GatewayEventLog{},
	}
}

func AutoMigrate(l *zap.SugaredLogger, db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	l.Infow("automigrate completed")
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing postgres connection pool")
			return sqlDB.Close()
		},
	})
}
