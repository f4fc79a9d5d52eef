package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/competition/realtime"
	"codearena/internal/judge/judge0"
	"codearena/internal/submit/service"
	"codearena/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 90 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string                `yaml:"addr"`
	ReadTimeout  time.Duration         `yaml:"readTimeout"`
	WriteTimeout time.Duration         `yaml:"writeTimeout"`
	IdleTimeout  time.Duration         `yaml:"idleTimeout"`
	CORS         middleware.CORSConfig `yaml:"cors"`
}

// JudgeConfig holds the remote judge client and runner settings.
type JudgeConfig struct {
	Client judge0.Config `yaml:"client"`
	// BatchTimeout bounds one batch from submit to the last poll.
	BatchTimeout   time.Duration `yaml:"batchTimeout"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

// ProblemConfig holds problem cache settings.
type ProblemConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
	EmptyTTL time.Duration `yaml:"emptyTTL"`
}

// RateLimitConfig is a per-user fixed window.
type RateLimitConfig struct {
	Window    time.Duration `yaml:"window"`
	SubmitMax int           `yaml:"submitMax"`
	RunMax    int           `yaml:"runMax"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SubmitConfig holds submission settings.
type SubmitConfig struct {
	SourceBucket       string                `yaml:"sourceBucket"`
	SourceKeyPrefix    string                `yaml:"sourceKeyPrefix"`
	MaxCodeBytes       int                   `yaml:"maxCodeBytes"`
	IdempotencyTTL     time.Duration         `yaml:"idempotencyTTL"`
	SubmissionCacheTTL time.Duration         `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration         `yaml:"submissionEmptyTTL"`
	JudgedTopic        string                `yaml:"judgedTopic"`
	RateLimit          RateLimitConfig       `yaml:"rateLimit"`
	Timeouts           service.TimeoutConfig `yaml:"timeouts"`
}

// CompetitionConfig holds room settings.
type CompetitionConfig struct {
	CodeAttempts   int             `yaml:"codeAttempts"`
	MaxSourceBytes int             `yaml:"maxSourceBytes"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RealtimeConfig holds websocket hub and relay settings.
type RealtimeConfig struct {
	Hub realtime.Config `yaml:"hub"`
	// RelayEnabled fans room events out through Kafka so every instance sees them.
	RelayEnabled bool                 `yaml:"relayEnabled"`
	Relay        realtime.RelayConfig `yaml:"relay"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// ProblemAuthorRoles restricts problem creation; empty allows any signed-in user.
	ProblemAuthorRoles []string `yaml:"problemAuthorRoles"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AppConfig holds arena-service configuration.
type AppConfig struct {
	Server      ServerConfig        `yaml:"server"`
	Logger      logger.Config       `yaml:"logger"`
	Database    db.MySQLConfig      `yaml:"database"`
	Redis       cache.RedisConfig   `yaml:"redis"`
	Kafka       mq.KafkaConfig      `yaml:"kafka"`
	MinIO       storage.MinIOConfig `yaml:"minio"`
	Judge       JudgeConfig         `yaml:"judge"`
	Problem     ProblemConfig       `yaml:"problem"`
	Submit      SubmitConfig        `yaml:"submit"`
	Competition CompetitionConfig   `yaml:"competition"`
	Realtime    RealtimeConfig      `yaml:"realtime"`
	Auth        AuthConfig          `yaml:"auth"`
	Metrics     MetricsConfig       `yaml:"metrics"`
}

// loadEnvFile loads KEY=VALUE pairs without overriding the real environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path, envPath string) (*AppConfig, error) {
	if err := loadEnvFile(envPath); err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Judge.Client.BaseURL == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}

	if cfg.Judge.BatchTimeout == 0 {
		cfg.Judge.BatchTimeout = 45 * time.Second
	}
	if cfg.Judge.MaxConcurrent == 0 {
		cfg.Judge.MaxConcurrent = 16
	}

	if cfg.Problem.CacheTTL == 0 {
		cfg.Problem.CacheTTL = 30 * time.Minute
	}
	if cfg.Problem.EmptyTTL == 0 {
		cfg.Problem.EmptyTTL = time.Minute
	}

	if cfg.Submit.SubmissionCacheTTL == 0 {
		cfg.Submit.SubmissionCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.SubmissionEmptyTTL == 0 {
		cfg.Submit.SubmissionEmptyTTL = time.Minute
	}
	if cfg.Submit.SourceBucket == "" {
		cfg.Submit.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Submit.SourceKeyPrefix == "" {
		cfg.Submit.SourceKeyPrefix = "submissions"
	}
	if cfg.Submit.JudgedTopic == "" {
		cfg.Submit.JudgedTopic = service.DefaultJudgedTopic
	}
	applyRateLimitDefaults(&cfg.Submit.RateLimit, 20, 60)
	applyRateLimitDefaults(&cfg.Competition.RateLimit, 20, 0)
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return &cfg, nil
}

func applyRateLimitDefaults(cfg *RateLimitConfig, submitMax, runMax int) {
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.SubmitMax == 0 {
		cfg.SubmitMax = submitMax
	}
	if cfg.RunMax == 0 {
		cfg.RunMax = runMax
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
}
