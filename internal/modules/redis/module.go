package redis

import (
	"context"
	"fmt"
	"time"

	"market_scanner/internal/modules/config"
	"market_scanner/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module: клиент Redis для раздачи сигналов. Выключен: клиент nil.
func Module() fx.Option {
	return fx.Module("redis",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*goredis.Client, error) {
				if !cfg.Redis.Enabled {
					return nil, nil
				}

				client := goredis.NewClient(&goredis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Ping(ctx).Err(); err != nil {
					_ = client.Close()
					return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
				}
				logger.Info("[REDIS] подключены к %s, канал %s", cfg.Redis.Addr, cfg.Redis.Channel)

				lc.Append(fx.StopHook(client.Close))
				return client, nil
			},
		),
	)
}
