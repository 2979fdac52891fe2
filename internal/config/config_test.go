package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Database.Dialect != "sqlite" {
		t.Fatalf("Database.Dialect = %q", cfg.Database.Dialect)
	}
	if cfg.Database.MaxOpenConns != 8 {
		t.Fatalf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Lake.Enabled {
		t.Fatal("Lake.Enabled should default to false")
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Model != "gpt-5" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("Pipeline.MaxAttempts = %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.HistoryLimit != 5 {
		t.Fatalf("Pipeline.HistoryLimit = %d", cfg.Pipeline.HistoryLimit)
	}
	if cfg.Pipeline.RowLimit != 1000 {
		t.Fatalf("Pipeline.RowLimit = %d", cfg.Pipeline.RowLimit)
	}
	if cfg.Pipeline.PromptVersion != "v1" {
		t.Fatalf("Pipeline.PromptVersion = %q", cfg.Pipeline.PromptVersion)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"QUERYPILOT_PROFILE": "prod"})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Lake.UseSSL {
		t.Fatal("Lake.UseSSL should default to true in prod")
	}
}

func TestLoadTestProfileUsesStaticProvider(t *testing.T) {
	cfg, err := Load("querypilot-api", mapLookup(map[string]string{"QUERYPILOT_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Provider != ProviderStatic {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.HTTP.Address != ":18080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUERYPILOT_PROFILE":                "test",
		"QUERYPILOT_SERVICE_NAME":           "querypilot-custom",
		"QUERYPILOT_HTTP_ADDR":              ":9999",
		"QUERYPILOT_HTTP_READ_TIMEOUT":      "2s",
		"QUERYPILOT_HTTP_WRITE_TIMEOUT":     "3s",
		"QUERYPILOT_LOG_LEVEL":              "error",
		"QUERYPILOT_AUTH_REQUIRED":          "true",
		"QUERYPILOT_AUTH_STATIC_KEYS":       "k1:analyst:query_reader",
		"QUERYPILOT_DB_DIALECT":             "duckdb",
		"QUERYPILOT_DB_DSN":                 "warehouse.duckdb",
		"QUERYPILOT_DB_SCHEMA":              "shop",
		"QUERYPILOT_DB_MAX_OPEN_CONNS":      "42",
		"QUERYPILOT_DB_MAX_IDLE_CONNS":      "17",
		"QUERYPILOT_LAKE_ENABLED":           "true",
		"QUERYPILOT_LAKE_ENDPOINT":          "s3.example.com",
		"QUERYPILOT_LAKE_BUCKET":            "warehouse",
		"QUERYPILOT_LAKE_REGION":            "us-west-2",
		"QUERYPILOT_LAKE_ACCESS_KEY":        "abc",
		"QUERYPILOT_LAKE_SECRET_KEY":        "def",
		"QUERYPILOT_LAKE_USE_SSL":           "true",
		"QUERYPILOT_LAKE_PREFIX":            "exports",
		"QUERYPILOT_AI_PROVIDER":            "Ollama",
		"QUERYPILOT_AI_BASE_URL":            "http://localhost:11434",
		"QUERYPILOT_AI_API_KEY":             "secret-key",
		"QUERYPILOT_AI_MODEL":               "sqlcoder",
		"QUERYPILOT_AI_TEMPERATURE":         "0.3",
		"QUERYPILOT_AI_TIMEOUT":             "21s",
		"QUERYPILOT_AI_RETRY_BACKOFF":       "250ms",
		"QUERYPILOT_MAX_ATTEMPTS":           "5",
		"QUERYPILOT_ROW_LIMIT":              "50",
		"QUERYPILOT_HISTORY_LIMIT":          "2",
		"QUERYPILOT_EXEC_TIMEOUT":           "4s",
		"QUERYPILOT_EXEC_RETRY_BACKOFF":     "75ms",
		"QUERYPILOT_MAX_CONCURRENT_READERS": "9",
		"QUERYPILOT_SCHEMA_CACHE_TTL":       "30s",
	})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "querypilot-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP timeouts = %s/%s", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:analyst:query_reader" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Database.Dialect != "duckdb" || cfg.Database.DSN != "warehouse.duckdb" || cfg.Database.Schema != "shop" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 42 || cfg.Database.MaxIdleConns != 17 {
		t.Fatalf("Database pool = %d/%d", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if !cfg.Lake.Enabled || cfg.Lake.Bucket != "warehouse" || cfg.Lake.Prefix != "exports" || !cfg.Lake.UseSSL {
		t.Fatalf("Lake = %+v", cfg.Lake)
	}
	if cfg.Lake.Endpoint != "s3.example.com" || cfg.Lake.Region != "us-west-2" {
		t.Fatalf("Lake endpoint = %q region = %q", cfg.Lake.Endpoint, cfg.Lake.Region)
	}
	if cfg.AI.Provider != ProviderOllama {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != "http://localhost:11434" || cfg.AI.APIKey != "secret-key" || cfg.AI.Model != "sqlcoder" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second || cfg.AI.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("AI timing = %s/%s", cfg.AI.Timeout, cfg.AI.RetryBackoff)
	}
	if cfg.Pipeline.MaxAttempts != 5 || cfg.Pipeline.RowLimit != 50 || cfg.Pipeline.HistoryLimit != 2 {
		t.Fatalf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.ExecTimeout != 4*time.Second || cfg.Pipeline.SchemaCacheTTL != 30*time.Second {
		t.Fatalf("Pipeline timing = %s/%s", cfg.Pipeline.ExecTimeout, cfg.Pipeline.SchemaCacheTTL)
	}
	if cfg.Pipeline.ExecRetryBackoff != 75*time.Millisecond {
		t.Fatalf("ExecRetryBackoff = %s", cfg.Pipeline.ExecRetryBackoff)
	}
	if cfg.Pipeline.MaxConcurrentReaders != 9 {
		t.Fatalf("Pipeline.MaxConcurrentReaders = %d", cfg.Pipeline.MaxConcurrentReaders)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"QUERYPILOT_PROFILE": "oops"},
		{"QUERYPILOT_HTTP_READ_TIMEOUT": "NaN"},
		{"QUERYPILOT_DB_MAX_OPEN_CONNS": "oops"},
		{"QUERYPILOT_DB_DSN": ""},
		{"QUERYPILOT_AI_TEMPERATURE": "bad"},
		{"QUERYPILOT_AI_PROVIDER": "watson"},
		{"QUERYPILOT_MAX_ATTEMPTS": "0"},
		{"QUERYPILOT_ROW_LIMIT": "-1"},
		{"QUERYPILOT_HISTORY_LIMIT": "-1"},
		{"QUERYPILOT_MAX_CONCURRENT_READERS": "0"},
		{"QUERYPILOT_LAKE_ENABLED": "true", "QUERYPILOT_LAKE_BUCKET": ""},
		{"QUERYPILOT_LAKE_ENABLED": "true", "QUERYPILOT_DB_DIALECT": "sqlite"},
		{"QUERYPILOT_AUTH_REQUIRED": "not-bool"},
		{"QUERYPILOT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("querypilot-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
