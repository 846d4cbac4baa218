package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_terminal/internal/modules/config"
	stream "market_terminal/internal/modules/stream/service"
	"market_terminal/internal/store"
)

// NewNotifier picks Telegram when a token and chat are configured.
func NewNotifier(cfg *config.Config, log *zap.Logger) Notifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return NewLog(log)
	}
	t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		log.Warn("telegram unavailable, notifications go to the log", zap.Error(err))
		return NewLog(log)
	}
	return t
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(NewNotifier),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, n Notifier, conn *stream.Client, signals *store.Signals, market *store.Market, log *zap.Logger) {
			f := NewForwarder(n, conn, cfg.Telegram.MinScore, log)
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					f.Start(signals, market)
					return nil
				},
				OnStop: func(context.Context) error {
					f.Stop()
					return nil
				},
			})
		}),
	)
}
