package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Lake          LakeConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig points at the database questions are answered from.
type DatabaseConfig struct {
	Dialect         string
	DSN             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// LakeConfig mounts parquet objects from an object store as DuckDB views.
// It is only used with the duckdb dialect.
type LakeConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type AIConfig struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	RetryBackoff time.Duration
	// StaticReply is what the static provider answers with.
	StaticReply string
}

type PipelineConfig struct {
	MaxAttempts          int
	RowLimit             int
	HistoryLimit         int
	ExecTimeout          time.Duration
	ExecRetryBackoff     time.Duration
	MaxConcurrentReaders int
	SchemaCacheTTL       time.Duration
	PromptVersion        string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYPILOT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYPILOT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "QUERYPILOT_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_DB_DIALECT", &cfg.Database.Dialect); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_DB_DSN", &cfg.Database.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_DB_SCHEMA", &cfg.Database.Schema); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYPILOT_LAKE_ENABLED", &cfg.Lake.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_LAKE_ENDPOINT", &cfg.Lake.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_LAKE_REGION", &cfg.Lake.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_LAKE_BUCKET", &cfg.Lake.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_LAKE_ACCESS_KEY", &cfg.Lake.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_LAKE_SECRET_KEY", &cfg.Lake.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYPILOT_LAKE_USE_SSL", &cfg.Lake.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_LAKE_PREFIX", &cfg.Lake.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_AI_PROVIDER", &cfg.AI.Provider); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "QUERYPILOT_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_AI_RETRY_BACKOFF", &cfg.AI.RetryBackoff); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_AI_STATIC_REPLY", &cfg.AI.StaticReply); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_MAX_ATTEMPTS", &cfg.Pipeline.MaxAttempts); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_ROW_LIMIT", &cfg.Pipeline.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_HISTORY_LIMIT", &cfg.Pipeline.HistoryLimit); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_EXEC_TIMEOUT", &cfg.Pipeline.ExecTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_EXEC_RETRY_BACKOFF", &cfg.Pipeline.ExecRetryBackoff); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_MAX_CONCURRENT_READERS", &cfg.Pipeline.MaxConcurrentReaders); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYPILOT_SCHEMA_CACHE_TTL", &cfg.Pipeline.SchemaCacheTTL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_PROMPT_VERSION", &cfg.Pipeline.PromptVersion); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYPILOT_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "QUERYPILOT_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYPILOT_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("QUERYPILOT_DB_DSN is required")
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderStatic:
	default:
		return Config{}, fmt.Errorf("invalid QUERYPILOT_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.Pipeline.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("QUERYPILOT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.Pipeline.RowLimit < 1 {
		return Config{}, fmt.Errorf("QUERYPILOT_ROW_LIMIT must be at least 1")
	}
	if cfg.Pipeline.HistoryLimit < 0 {
		return Config{}, fmt.Errorf("QUERYPILOT_HISTORY_LIMIT must not be negative")
	}
	if cfg.Pipeline.MaxConcurrentReaders < 1 {
		return Config{}, fmt.Errorf("QUERYPILOT_MAX_CONCURRENT_READERS must be at least 1")
	}
	if cfg.Lake.Enabled && cfg.Lake.Bucket == "" {
		return Config{}, fmt.Errorf("QUERYPILOT_LAKE_BUCKET is required when the lake is enabled")
	}
	if cfg.Lake.Enabled && !strings.EqualFold(cfg.Database.Dialect, "duckdb") {
		return Config{}, fmt.Errorf("the lake requires QUERYPILOT_DB_DIALECT=duckdb")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querypilot-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Dialect:         "sqlite",
			DSN:             "database/ecommerce.db",
			MaxOpenConns:    8,
			MaxIdleConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Lake: LakeConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "querypilot",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
		},
		AI: AIConfig{
			Provider:     ProviderOpenAI,
			BaseURL:      "https://api.openai.com",
			Model:        "gpt-5",
			Temperature:  0.1,
			Timeout:      30 * time.Second,
			RetryBackoff: 500 * time.Millisecond,
			StaticReply:  "SELECT 1;",
		},
		Pipeline: PipelineConfig{
			MaxAttempts:          3,
			RowLimit:             1000,
			HistoryLimit:         5,
			ExecTimeout:          10 * time.Second,
			ExecRetryBackoff:     200 * time.Millisecond,
			MaxConcurrentReaders: 4,
			SchemaCacheTTL:       time.Minute,
			PromptVersion:        "v1",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.AI.Provider = ProviderStatic
		cfg.AI.RetryBackoff = 10 * time.Millisecond
		cfg.Pipeline.ExecRetryBackoff = 10 * time.Millisecond
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Lake.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
