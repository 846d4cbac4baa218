package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_terminal/internal/helper"
	"market_terminal/internal/modules/config"
	"market_terminal/internal/modules/health/service"
	loader "market_terminal/internal/modules/loader/service"
	stream "market_terminal/internal/modules/stream/service"
	"market_terminal/internal/store"
)

type Params struct {
	fx.In

	Config    *config.Config
	State     *service.State
	Market    *store.Market
	Signals   *store.Signals
	Orders    *store.Orders
	Portfolio *store.Portfolio
	Load      *store.Load
	Pipeline  *store.Pipeline
	UI        *store.UI
	Loader    *loader.Loader
	Stream    *stream.Client
	Log       *zap.Logger
}

func NewState(lc fx.Lifecycle, cfg *config.Config, market *store.Market, load *store.Load) *service.State {
	st := service.NewState(cfg.Load.OnStart)
	unwatch := st.Watch(market, load)
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		unwatch()
		return nil
	}})
	return st
}

func NewAPI(p Params) *service.API {
	var preset func(string) ([]string, bool)
	if len(p.Config.Presets) > 0 {
		preset = p.Config.Preset
	}
	return service.NewAPI(service.Deps{
		State:     p.State,
		Market:    p.Market,
		Signals:   p.Signals,
		Orders:    p.Orders,
		Portfolio: p.Portfolio,
		Load:      p.Load,
		Pipeline:  p.Pipeline,
		UI:        p.UI,
		Loader:    p.Loader,
		Conn:      p.Stream,
		Universe:  helper.Universe(p.Config.Sectors),
		Preset:    preset,
		Years:     p.Config.Load.Years,
		Log:       p.Log.Named("http"),
	})
}

func NewEngine(cfg *config.Config, api *service.API, log *zap.Logger) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log.Named("http")))
	api.Register(engine)
	return engine
}

// requestLogger logs every request at debug, failures at warn.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("http serve", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			NewState,
			NewAPI,
			NewEngine,
		),
		fx.Invoke(RunHTTP),
	)
}
