package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
	"form-ai-queue/internal/infra/metrics"
	red "form-ai-queue/internal/infra/redis"
)

var _ repository.GenerationConfigRepository = (*generationConfigCacheDecorator)(nil)

type generationConfigCacheDecorator struct {
	inner repository.GenerationConfigRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewGenerationConfigCacheDecorator adds a read-through Redis cache in front of inner.
func NewGenerationConfigCacheDecorator(inner repository.GenerationConfigRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.GenerationConfigRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "generation_config_cache").Logger()
	return &generationConfigCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func configKey(id string) string { return fmt.Sprintf("generation_config:%s", id) }

func (d *generationConfigCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationConfig, error) {
	key := configKey(id)
	// a transaction wants the row it will lock, not a cached copy
	if tx == nil {
		val, err := d.cache.Get(ctx, key)
		if err == nil {
			var cfg model.GenerationConfig
			if json.Unmarshal([]byte(val), &cfg) == nil {
				metrics.IncCacheRequest("generation_config", "hit")
				return &cfg, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
	}

	metrics.IncCacheRequest("generation_config", "miss")
	cfg, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(cfg); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return cfg, nil
}

func (d *generationConfigCacheDecorator) Save(ctx context.Context, tx repository.Tx, cfg *model.GenerationConfig) error {
	if err := d.inner.Save(ctx, tx, cfg); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, configKey(cfg.ID)); err != nil {
		d.log.Warn().Err(err).Str("id", cfg.ID).Msg("cache invalidation failed")
	}
	return nil
}
