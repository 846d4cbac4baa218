package preferences

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/modules/config"
	"market_terminal/internal/modules/preferences/service"
	"market_terminal/internal/store"
	"market_terminal/pkg/db"
)

const connectTimeout = 5 * time.Second

// NewRepository opens the backend named by preferences.backend.
func NewRepository(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (store.PreferencesRepository, error) {
	profile := cfg.Preferences.Profile
	log = log.With(zap.String("backend", cfg.Preferences.Backend), zap.String("profile", profile))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.Preferences.Backend {
	case "postgres":
		pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB, MaxConns: 4})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create poolMaster")
		}
		tx := db.NewPgTxManager(pool)
		repo := service.NewPostgres(tx, profile)
		if err := repo.Migrate(ctx); err != nil {
			tx.Close()
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			tx.Close()
			return nil
		}})
		log.Info("preferences stored in postgres")
		return repo, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  connectTimeout,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     4,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(err, "redis ping %s", cfg.Redis.Addr)
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			return client.Close()
		}})
		log.Info("preferences stored in redis", zap.String("addr", cfg.Redis.Addr))
		return service.NewRedis(client, profile), nil

	default:
		log.Info("preferences stored in file", zap.String("path", cfg.Preferences.Path))
		return service.NewFile(cfg.Preferences.Path, profile), nil
	}
}

// Defaults are the preferences of a first run.
func Defaults(cfg *config.Config, now time.Time) models.Preferences {
	p := models.Preferences{
		Preset:    cfg.Load.Preset,
		YearRange: models.YearRange{From: now.Year() - cfg.Load.Years, To: now.Year()},
	}
	if len(cfg.Sectors) > 0 && len(cfg.Sectors[0].Symbols) > 0 {
		p.ActiveSymbol = cfg.Sectors[0].Symbols[0]
	}
	return p
}

func NewUI(cfg *config.Config, repo store.PreferencesRepository, log *zap.Logger) *store.UI {
	return store.NewUI(repo, Defaults(cfg, time.Now()), log.Named("ui"))
}

// Module provides the UI store and restores saved preferences on start.
// An unreadable store is logged and the defaults stay in place.
func Module() fx.Option {
	return fx.Module("preferences",
		fx.Provide(
			NewRepository,
			NewUI,
		),
		fx.Invoke(func(lc fx.Lifecycle, ui *store.UI, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := ui.Restore(ctx); err != nil {
						log.Error("restore preferences", zap.Error(err))
					}
					return nil
				},
			})
		}),
	)
}
