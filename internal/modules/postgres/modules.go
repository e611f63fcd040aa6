package postgres

import (
	"context"
	"fmt"

	"market_scanner/internal/modules/config"
	"market_scanner/pkg/db"
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

// Module: пул Postgres. Без DSN пул не создаётся, потребители работают без базы.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB.DSN == "" {
					logger.Warn("[PG] DSN не задан, работаем без базы")
					return nil, nil
				}

				ctx, cancel := context.WithTimeout(context.Background(), cfg.Market.RequestTimeout)
				defer cancel()

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB.DSN,
					MaxConns: cfg.DB.MaxConns,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					poolMaster.Close()
					return nil, err
				}

				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.StopHook(m.Close))
				return m, nil
			},
		),
	)
}
