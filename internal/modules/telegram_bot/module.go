package telegram

import (
	"market_scanner/internal/modules/config"
	"market_scanner/internal/notify"
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			func(cfg *config.Config) (notify.Notifier, error) {
				if cfg.Telegram.Token == "" {
					logger.Warn("[NOTIFY] TELEGRAM_TOKEN не задан, сигналы пишутся в лог")
					return notify.NewStdout(), nil
				}
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.AdminChatID)
			},
		),
	)
}
