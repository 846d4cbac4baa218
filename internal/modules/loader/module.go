package loader

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_terminal/internal/modules/config"
	"market_terminal/internal/modules/loader/service"
	"market_terminal/internal/store"
)

func NewLoader(
	cfg *config.Config,
	market *store.Market,
	signals *store.Signals,
	load *store.Load,
	pipeline *store.Pipeline,
	log *zap.Logger,
) *service.Loader {
	return service.NewLoader(service.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Years:   cfg.Load.Years,
	}, &http.Client{}, market, signals, load, pipeline, log.Named("loader"))
}

// Module seeds the active preset on start and tears down in-flight streams on stop.
func Module() fx.Option {
	return fx.Module("loader",
		fx.Provide(NewLoader),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, ui *store.UI, l *service.Loader) {
			lc.Append(fx.Hook{
				// runs after preferences are restored, so a saved preset wins
				OnStart: func(ctx context.Context) error {
					preset := ui.State().Preset
					if preset == "" {
						preset = cfg.Load.Preset
					}
					if cfg.Load.OnStart && preset != "" {
						l.StartSeed(preset)
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					l.Stop()
					return nil
				},
			})
		}),
	)
}
