package sink

import (
	"market_scanner/internal/modules/config"
	"market_scanner/internal/modules/sink/service"
	"market_scanner/internal/notify"
	"market_scanner/pkg/db"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const memoryTradesLimit = 1000

type params struct {
	fx.In

	Cfg      *config.Config
	Notifier notify.Notifier
	DB       *db.PgTxManager `optional:"true"`
	Redis    *goredis.Client `optional:"true"`
}

func Module() fx.Option {
	return fx.Module("sink",
		fx.Provide(
			func(p params) service.Sink {
				var repo service.TradeRepo = service.NewMemoryTrades(memoryTradesLimit)
				if p.DB != nil {
					repo = service.NewPgTrades(p.DB)
				}

				var pub service.Publisher
				if p.Redis != nil {
					pub = service.NewRedisPublisher(p.Redis)
				}
				return service.New(repo, pub, p.Cfg.Redis.Channel, p.Notifier)
			},
		),
	)
}
