package settings

import (
	"market_scanner/internal/modules/config"
	"market_scanner/internal/modules/settings/service"
	"market_scanner/internal/modules/settings/service/file"
	"market_scanner/internal/modules/settings/service/pg"
	"market_scanner/pkg/db"
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

type storeParams struct {
	fx.In

	Cfg *config.Config
	DB  *db.PgTxManager `optional:"true"`
}

func Module() fx.Option {
	return fx.Module("settings",
		fx.Provide(
			func(p storeParams) service.Store {
				if p.Cfg.Settings.Backend == "pg" && p.DB != nil {
					logger.Info("[SETTINGS] хранилище: postgres")
					return pg.New(p.DB, p.Cfg.Defaults)
				}
				logger.Info("[SETTINGS] хранилище: файл %s", p.Cfg.Settings.FilePath)
				return file.New(p.Cfg.Settings.FilePath, p.Cfg.Defaults)
			},
		),
	)
}
