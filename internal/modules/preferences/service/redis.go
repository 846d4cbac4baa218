package service

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"market_terminal/internal/models"
)

const keyPrefix = "terminal:preferences:"

// Redis keeps each profile under its own key.
type Redis struct {
	client  *redis.Client
	profile string
}

func NewRedis(client *redis.Client, profile string) *Redis {
	return &Redis{client: client, profile: profile}
}

func (r *Redis) key() string { return keyPrefix + r.profile }

func (r *Redis) Load(ctx context.Context) (models.Preferences, bool, error) {
	raw, err := r.client.Get(ctx, r.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Preferences{}, false, nil
	}
	if err != nil {
		return models.Preferences{}, false, errors.Wrap(err, "redis get preferences")
	}

	var p models.Preferences
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return models.Preferences{}, false, errors.Wrap(err, "decode preferences")
	}
	return p, true, nil
}

func (r *Redis) Save(ctx context.Context, p models.Preferences) error {
	data, err := sonic.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode preferences")
	}
	if err := r.client.Set(ctx, r.key(), data, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set preferences")
	}
	return nil
}
