package stream

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_terminal/internal/modules/config"
	"market_terminal/internal/modules/stream/service"
	"market_terminal/internal/router"
	"market_terminal/internal/store"
)

func NewClient(cfg *config.Config, r *router.Router, market *store.Market, log *zap.Logger) *service.Client {
	s := cfg.Stream
	return service.NewClient(service.Config{
		URL: s.URL,
		Backoff: service.Backoff{
			Base:   s.BaseDelay,
			Jitter: s.Jitter,
			Max:    s.MaxDelay,
		},
		HandshakeTimeout: s.HandshakeTimeout,
		PingPeriod:       s.PingPeriod,
		ReadLimit:        s.ReadLimit,
	}, r, market, service.SystemScheduler(), log.Named("stream"))
}

// Module keeps the market websocket connected for the app lifetime.
func Module() fx.Option {
	return fx.Module("stream",
		fx.Provide(NewClient),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					c.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					c.Stop()
					return nil
				},
			})
		}),
	)
}
