package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_terminal/internal/modules/config"
	"market_terminal/pkg/logger"
	"market_terminal/pkg/tracing"
)

const serviceName = "market-terminal"

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(serviceName)
	return logger.New(cfg.Log.Level)
}

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(NewLogger),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
			tracing.SetServiceName(serviceName)
			closer, err := tracing.Init(tracing.Config{
				Enabled: cfg.Tracing.Enabled,
				Host:    cfg.Tracing.Host,
				Port:    cfg.Tracing.Port,
			})
			if err != nil {
				return err
			}
			log.Info("effective config\n" + cfg.Dump())
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closer()
					_ = log.Sync()
					return nil
				},
			})
			return nil
		}),
	)
}
