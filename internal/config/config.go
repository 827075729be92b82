// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port        int           `yaml:"port"`
	AdminAPIKey string        `yaml:"admin_api_key"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	// LoopbackURL is where the wake fallback posts; defaults to the local server.
	LoopbackURL string `yaml:"loopback_url"`
	// SubmitRateLimit caps submissions per caller and form per minute.
	SubmitRateLimit int `yaml:"submit_rate_limit"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	// Background=false runs every submission synchronously (immediate mode).
	Background        bool          `yaml:"background"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RearmDelay        time.Duration `yaml:"rearm_delay"`
	StuckTimeout      time.Duration `yaml:"stuck_timeout"`
	StalePendingAfter time.Duration `yaml:"stale_pending_after"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	DefaultMaxRetries int           `yaml:"default_max_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	WakeChannel       string        `yaml:"wake_channel"`
	LastTickKey       string        `yaml:"last_tick_key"`
	SweepLockKey      string        `yaml:"sweep_lock_key"`
}

type AIConfig struct {
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicKey     string        `yaml:"anthropic_key"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	AnthropicVersion string        `yaml:"anthropic_version"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	DefaultProvider  string        `yaml:"default_provider"`
	ConcurrentLimit  int           `yaml:"concurrent_limit"` // max concurrent AI calls
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	ContextShrink    float64       `yaml:"context_shrink_factor"`
}

// ProfileOverride replaces individual chunk profile values for one provider.
// Zero values keep the built-in profile.
type ProfileOverride struct {
	DefaultChunkSize int            `yaml:"default_chunk_size"`
	ModelChunkSizes  map[string]int `yaml:"model_chunk_sizes"`
	FirstChunkBoost  float64        `yaml:"first_chunk_boost"`
	TaperFactor      float64        `yaml:"taper_factor"`
	MaxChunks        int            `yaml:"max_chunks"`
	ExtraChunks      int            `yaml:"extra_chunks"`
	MinChunkTokens   int            `yaml:"min_chunk_tokens"`
	HistoryWindow    int            `yaml:"history_window"`
	NoSmartStopRatio float64        `yaml:"no_smart_stop_ratio"`
	ForcedStopMargin int            `yaml:"forced_stop_margin"`
	AssistantRole    string         `yaml:"assistant_role"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type Config struct {
	Log      LogConfig                  `yaml:"log"`
	HTTP     HTTPConfig                 `yaml:"http"`
	Database DatabaseConfig             `yaml:"database"`
	Redis    RedisConfig                `yaml:"redis"`
	Queue    QueueConfig                `yaml:"queue"`
	AI       AIConfig                   `yaml:"ai"`
	Chunking map[string]ProfileOverride `yaml:"chunking"`
	Telegram TelegramConfig             `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// rawQueue lets us tell "background: false" apart from "not set".
type rawQueue struct {
	Queue struct {
		Background *bool `yaml:"background"`
	} `yaml:"queue"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies env overrides and defaults, and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var rq rawQueue
	_ = yaml.Unmarshal(b, &rq)
	if rq.Queue.Background == nil {
		cfg.Queue.Background = true
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.AI.ContextShrink <= 0 || cfg.AI.ContextShrink >= 1 {
		return nil, fmt.Errorf("ai.context_shrink_factor must be in (0,1), got %v", cfg.AI.ContextShrink)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.TokenTTL <= 0 {
		cfg.HTTP.TokenTTL = 30 * time.Minute
	}
	if cfg.HTTP.LoopbackURL == "" {
		cfg.HTTP.LoopbackURL = fmt.Sprintf("http://127.0.0.1:%d/internal/wake", cfg.HTTP.Port)
	}
	if cfg.HTTP.SubmitRateLimit <= 0 {
		cfg.HTTP.SubmitRateLimit = 60
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	q := &cfg.Queue
	if q.MaxConcurrent <= 0 {
		q.MaxConcurrent = 3
	}
	q.HeartbeatInterval = orDuration(q.HeartbeatInterval, 30*time.Second)
	q.RearmDelay = orDuration(q.RearmDelay, 5*time.Second)
	q.StuckTimeout = orDuration(q.StuckTimeout, 10*time.Minute)
	q.StalePendingAfter = orDuration(q.StalePendingAfter, time.Hour)
	q.JobTimeout = orDuration(q.JobTimeout, 10*time.Minute)
	q.BackoffBase = orDuration(q.BackoffBase, 60*time.Second)
	q.BackoffMax = orDuration(q.BackoffMax, 10*time.Minute)
	if q.DefaultMaxRetries <= 0 {
		q.DefaultMaxRetries = 3
	}
	if q.WakeChannel == "" {
		q.WakeChannel = "form-ai-queue:wake"
	}
	if q.LastTickKey == "" {
		q.LastTickKey = "form-ai-queue:last_tick"
	}
	if q.SweepLockKey == "" {
		q.SweepLockKey = "form-ai-queue:sweep"
	}

	a := &cfg.AI
	if a.ConcurrentLimit <= 0 {
		a.ConcurrentLimit = 16
	}
	a.RequestTimeout = orDuration(a.RequestTimeout, 5*time.Minute)
	if a.RetryAttempts <= 0 {
		a.RetryAttempts = 3
	}
	a.RetryBaseDelay = orDuration(a.RetryBaseDelay, 2*time.Second)
	a.RetryMaxDelay = orDuration(a.RetryMaxDelay, 20*time.Second)
	if a.ContextShrink == 0 {
		a.ContextShrink = 0.7
	}
	if a.AnthropicBaseURL == "" {
		a.AnthropicBaseURL = "https://api.anthropic.com"
	}
	if a.AnthropicVersion == "" {
		a.AnthropicVersion = "2023-06-01"
	}
	if a.DefaultProvider == "" {
		a.DefaultProvider = "openai"
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
