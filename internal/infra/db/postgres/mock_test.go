//go:build !integration

package postgres

import (
	"context"
	"time"

	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
	red "form-ai-queue/internal/infra/redis"
)

// mockInnerConfigRepo mocks the database repository the config cache wraps.
type mockInnerConfigRepo struct {
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.GenerationConfig, error)
	SaveFunc     func(ctx context.Context, tx repository.Tx, cfg *model.GenerationConfig) error
}

func (m *mockInnerConfigRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationConfig, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerConfigRepo) Save(ctx context.Context, tx repository.Tx, cfg *model.GenerationConfig) error {
	return m.SaveFunc(ctx, tx, cfg)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Close() error                   { return m.CloseFunc() }
