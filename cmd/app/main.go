// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/config"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
	aiAdapters "form-ai-queue/internal/infra/adapters/ai"
	tele "form-ai-queue/internal/infra/adapters/telegram"
	pg "form-ai-queue/internal/infra/db/postgres"
	"form-ai-queue/internal/infra/logging"
	"form-ai-queue/internal/infra/metrics"
	red "form-ai-queue/internal/infra/redis"
	"form-ai-queue/internal/infra/scheduler"
	"form-ai-queue/internal/infra/web"
	"form-ai-queue/internal/infra/worker"
	"form-ai-queue/internal/usecase"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "use local no-op AI providers instead of real ones")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exiting")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode: AI providers replaced by local generators")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		// The queue lives in Postgres; redis only speeds it up.
		logger.Warn().Err(err).Msg("redis unavailable at startup; wake signals and caching degraded")
		redisClient = red.NewLazyClient(&cfg.Redis)
	}
	defer redisClient.Close()

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	configRepo := pg.NewGenerationConfigCacheDecorator(pg.NewGenerationConfigRepo(pool), redisClient, cfg.Redis.TTL, logger)
	resultRepo := pg.NewGenerationResultRepo(pool)

	// ---- AI providers ----
	providers := buildProviders(cfg, logger)
	router := aiAdapters.NewMultiAIAdapter(cfg.AI.DefaultProvider, providers)
	controller := usecase.NewChunkController(usecase.ProfilesWithOverrides(cfg.Chunking), aiAdapters.NewTiktokenCounter(), logger)

	// ---- Wake path: redis pub/sub, loopback HTTP as fallback ----
	loopback := web.NewLoopbackWaker(cfg.HTTP.LoopbackURL, logger)
	redisWaker := red.NewWaker(redisClient, cfg.Queue.WakeChannel, loopback, logger)
	ticks := red.NewTickRecorder(redisClient, cfg.Queue.LastTickKey)

	// ---- Use cases ----
	formUC := usecase.NewFormProcessingUseCase(configRepo, usecase.NewCompletionSettingsUseCase(configRepo), resultRepo, router, controller, logger, cfg.Runtime.Dev)
	queueUC := usecase.NewJobQueueUseCase(jobRepo, formUC, redisWaker, usecase.QueueOptions{
		Background: cfg.Queue.Background,
		MaxRetries: cfg.Queue.DefaultMaxRetries,
	}, logger)

	// ---- Runner ----
	workers := worker.NewPool(cfg.Queue.MaxConcurrent, logger)
	workers.Start(ctx)
	runner := worker.NewJobRunner(
		jobRepo,
		ticks,
		red.NewLocker(redisClient),
		buildNotifier(cfg, logger),
		loopback,
		workers,
		worker.OptionsFromConfig(cfg.Queue),
		logger,
	)
	runner.Register(model.JobTypeAIForm, formUC)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Start(ctx, redisWaker.Subscribe(ctx))
	}()

	// ---- Housekeeping ----
	poolStats := scheduler.NewPeriodic("db_pool_stats", 15*time.Second, func(context.Context) error {
		reportPoolStats(pool)
		return nil
	}, logger)
	poolStats.Start(ctx)
	defer poolStats.Stop()

	queueDepth := scheduler.NewPeriodic("queue_depth", cfg.Queue.HeartbeatInterval, func(ctx context.Context) error {
		_, err := queueUC.Statistics(ctx, 0)
		return err
	}, logger)
	queueDepth.Start(ctx)
	defer queueDepth.Stop()

	// ---- HTTP ----
	srv := web.NewServer(
		queueUC,
		ticks,
		runner,
		red.NewRateLimiter(redisClient),
		web.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL),
		web.Options{
			Port:              cfg.HTTP.Port,
			AdminAPIKey:       cfg.HTTP.AdminAPIKey,
			SubmitRateLimit:   cfg.HTTP.SubmitRateLimit,
			HeartbeatInterval: cfg.Queue.HeartbeatInterval,
		},
		logger,
	)
	logger.Info().
		Str("version", version).
		Bool("background", cfg.Queue.Background).
		Int("providers", len(providers)).
		Msg("form-ai-queue started")

	err = srv.Start(ctx)
	stop()
	<-runnerDone
	workers.Stop()
	runner.Wait()
	logger.Info().Msg("shutdown complete")
	return err
}

func buildProviders(cfg *config.Config, logger *zerolog.Logger) map[string]adapter.AIServiceAdapter {
	out := map[string]adapter.AIServiceAdapter{}
	if cfg.Runtime.Dev {
		for _, name := range []string{aiAdapters.ProviderOpenAI, aiAdapters.ProviderAnthropic, aiAdapters.ProviderGemini} {
			out[name] = aiAdapters.NewNoopAIAdapter(name, model.DefaultCompletionMarker)
		}
		return out
	}

	policy := aiAdapters.RetryPolicy{
		Attempts:     cfg.AI.RetryAttempts,
		BaseDelay:    cfg.AI.RetryBaseDelay,
		MaxDelay:     cfg.AI.RetryMaxDelay,
		ShrinkFactor: cfg.AI.ContextShrink,
	}
	wrap := func(a adapter.AIServiceAdapter) adapter.AIServiceAdapter {
		return aiAdapters.NewLimitedAI(aiAdapters.NewRetryingAI(a, policy, logger), cfg.AI.ConcurrentLimit)
	}

	if cfg.AI.OpenAIKey != "" {
		out[aiAdapters.ProviderOpenAI] = wrap(aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.RequestTimeout))
	}
	if cfg.AI.AnthropicKey != "" {
		out[aiAdapters.ProviderAnthropic] = wrap(aiAdapters.NewAnthropicAdapter(cfg.AI.AnthropicKey, cfg.AI.AnthropicBaseURL, cfg.AI.AnthropicVersion, cfg.AI.RequestTimeout))
	}
	if cfg.AI.GeminiKey != "" {
		out[aiAdapters.ProviderGemini] = wrap(aiAdapters.NewGeminiAdapter(cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.RequestTimeout))
	}
	if len(out) == 0 {
		// Jobs will fail permanently with provider-not-configured until a key is set.
		logger.Warn().Msg("no AI provider credentials configured")
	}
	for name := range out {
		logger.Info().Str("provider", name).Msg("ai provider enabled")
	}
	return out
}

func buildNotifier(cfg *config.Config, logger *zerolog.Logger) adapter.FailureNotifier {
	if cfg.Telegram.Token == "" {
		return tele.NewNoopNotifier(logger)
	}
	n, err := tele.NewFailureNotifier(cfg.Telegram.Token, cfg.Telegram.AdminChatID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier disabled")
		return tele.NewNoopNotifier(logger)
	}
	return n
}

func reportPoolStats(pool *pgxpool.Pool) {
	s := pool.Stat()
	metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns(), s.AcquireDuration().Seconds())
}
