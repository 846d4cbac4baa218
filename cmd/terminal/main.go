package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"market_terminal/internal/modules/bootstrap"
	"market_terminal/internal/modules/config"
	"market_terminal/internal/modules/health"
	"market_terminal/internal/modules/loader"
	"market_terminal/internal/modules/preferences"
	"market_terminal/internal/modules/stream"
	"market_terminal/internal/notify"
	"market_terminal/internal/router"
	"market_terminal/internal/store"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		config.Module(),
		bootstrap.Module(),
		store.Module(),
		router.Module(),
		// preferences restore before the loader seeds the saved preset
		preferences.Module(),
		notify.Module(),
		stream.Module(),
		loader.Module(),
		health.Module(),
	)
	app.Run()
}
