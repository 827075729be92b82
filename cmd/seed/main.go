package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"gopkg.in/yaml.v3"

	"form-ai-queue/internal/config"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
	pg "form-ai-queue/internal/infra/db/postgres"
	"form-ai-queue/internal/infra/logging"
	red "form-ai-queue/internal/infra/redis"
)

type seedFile struct {
	Configs []seedConfig `yaml:"generation_configs"`
}

type seedConfig struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	SystemPrompt   string  `yaml:"system_prompt"`
	PromptTemplate string  `yaml:"prompt_template"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	ChunkSize      int     `yaml:"chunk_size"`
	EnableChunking bool    `yaml:"enable_chunking"`

	Completion struct {
		Marker          *string `yaml:"marker"`
		MinContentLen   *int    `yaml:"min_content_length"`
		WordCount       *int    `yaml:"word_count"`
		Keywords        *string `yaml:"keywords"`
		SmartCompletion *bool   `yaml:"smart_completion"`
		TokenPercentage *bool   `yaml:"token_percentage"`
		Threshold       *int    `yaml:"threshold"`
		ForcedMargin    *int    `yaml:"forced_stop_margin"`
	} `yaml:"completion"`
}

func (s seedConfig) toModel() (*model.GenerationConfig, error) {
	if strings.TrimSpace(s.ID) == "" {
		return nil, errors.New("id is required")
	}
	if strings.TrimSpace(s.PromptTemplate) == "" {
		return nil, fmt.Errorf("%s: prompt_template is required", s.ID)
	}
	c := s.Completion
	return &model.GenerationConfig{
		ID:                       s.ID,
		Name:                     s.Name,
		Provider:                 s.Provider,
		Model:                    s.Model,
		SystemPrompt:             s.SystemPrompt,
		PromptTemplate:           s.PromptTemplate,
		Temperature:              s.Temperature,
		MaxTokens:                s.MaxTokens,
		ChunkSize:                s.ChunkSize,
		EnableChunking:           s.EnableChunking,
		CompletionMarker:         c.Marker,
		MinContentLength:         c.MinContentLen,
		CompletionWordCount:      c.WordCount,
		CompletionKeywords:       c.Keywords,
		EnableSmartCompletion:    c.SmartCompletion,
		UseTokenPercentage:       c.TokenPercentage,
		TokenCompletionThreshold: c.Threshold,
		ForcedStopMargin:         c.ForcedMargin,
	}, nil
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	seedPath := flag.String("file", "deploy/seed/generation_configs.yaml", "generation configs to upsert")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, false)

	raw, err := os.ReadFile(*seedPath)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *seedPath).Msg("read seed file")
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		logger.Fatal().Err(err).Msg("parse seed file")
	}
	configs := make([]*model.GenerationConfig, 0, len(file.Configs))
	for i, s := range file.Configs {
		c, err := s.toModel()
		if err != nil {
			logger.Fatal().Err(err).Int("index", i).Msg("invalid generation config")
		}
		configs = append(configs, c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// Saves go through the cache decorator so stale entries are dropped.
	redisClient := red.NewLazyClient(&cfg.Redis)
	defer redisClient.Close()
	repo := pg.NewGenerationConfigCacheDecorator(pg.NewGenerationConfigRepo(pool), redisClient, cfg.Redis.TTL, logger)

	tm := pg.NewTxManager(pool)
	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, c := range configs {
			if err := repo.Save(ctx, tx, c); err != nil {
				return fmt.Errorf("save %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}
	for _, c := range configs {
		logger.Info().Str("id", c.ID).Str("provider", c.Provider).Str("model", c.Model).Bool("chunking", c.EnableChunking).Msg("seeded")
	}
	logger.Info().Int("count", len(configs)).Msg("seeding complete")
}
