package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from the environment.
type Config struct {
	AppEnv   string
	LogLevel string

	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	// Persistence. DatabaseURL selects the Postgres backend; when empty the
	// service falls back to a local SQLite file at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisTLS       bool
	ConfigCacheTTL time.Duration

	GraphBaseURL string
	GraphTimeout time.Duration

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	OpenAIAudioModel  string
	OpenAITimeout     time.Duration

	MediaDir       string
	HistoryLimit   int
	ProcessTimeout time.Duration
}

// Load reads configuration from environment variables applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:   envString("APP_ENV", "development"),
		LogLevel: envString("LOG_LEVEL", "info"),

		HTTPListenAddr:   envString("HTTP_LISTEN_ADDR", ":8000"),
		PublicBasePath:   envString("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: envString("METRICS_NAMESPACE", "wabridge"),

		DatabaseURL: envString("DATABASE_URL", ""),
		SQLitePath:  envString("SQLITE_PATH", "data/wabridge.db"),

		RedisAddr:      envString("REDIS_ADDR", ""),
		RedisPassword:  envString("REDIS_PASSWORD", ""),
		ConfigCacheTTL: envDuration("CONFIG_CACHE_TTL", 5*time.Minute),

		GraphBaseURL: envString("GRAPH_BASE_URL", "https://graph.facebook.com/v18.0"),
		GraphTimeout: envDuration("GRAPH_TIMEOUT", 30*time.Second),

		OpenAIAPIKey:      envString("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     envString("OPENAI_BASE_URL", ""),
		OpenAIModel:       envString("OPENAI_MODEL", "gpt-4o"),
		OpenAIVisionModel: envString("OPENAI_VISION_MODEL", "gpt-4o"),
		OpenAIAudioModel:  envString("OPENAI_AUDIO_MODEL", "whisper-1"),
		OpenAITimeout:     envDuration("OPENAI_TIMEOUT", 60*time.Second),

		MediaDir:       envString("MEDIA_DIR", "uploads"),
		HistoryLimit:   envInt("HISTORY_LIMIT", 10),
		ProcessTimeout: envDuration("PROCESS_TIMEOUT", 2*time.Minute),
	}

	var err error
	cfg.RedisDB, err = envIntErr("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisTLS = envBool("REDIS_TLS", false)

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}

	return cfg, nil
}

func envString(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return def
}

func envInt(key string, def int) int {
	val, err := envIntErr(key, def)
	if err != nil {
		return def
	}
	return val
}

func envIntErr(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return val, nil
}

func envBool(key string, def bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	val, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return val
}

func envDuration(key string, def time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	val, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return val
}
