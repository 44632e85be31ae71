package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// configPathEnv はYAML設定ファイルのパスを指定する環境変数。
const configPathEnv = "METACHAN_CONFIG"

// DefaultMappingSourceURL はID対応表の取得元。
const DefaultMappingSourceURL = "https://raw.githubusercontent.com/Fribb/anime-lists/master/anime-list-full.json"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
// 優先順位は 環境変数 > YAMLファイル > デフォルト値。
type Config struct {
	// Database
	DatabaseURL       string `yaml:"databaseUrl"`
	DBConnectAttempts int    `yaml:"dbConnectAttempts"`

	// Server
	ServerPort         string        `yaml:"serverPort"`
	ServerWriteTimeout time.Duration `yaml:"serverWriteTimeout"`
	CORSAllowedOrigin  string        `yaml:"corsAllowedOrigin"`
	RateLimitGeneral   int           `yaml:"rateLimitGeneral"`

	// Logging
	LogLevel string `yaml:"logLevel"`

	// Fetch
	HTTPTimeout         time.Duration `yaml:"httpTimeout"`
	FetchMaxAttempts    int           `yaml:"fetchMaxAttempts"`
	FetchInitialDelay   time.Duration `yaml:"fetchInitialDelay"`
	FetchMaxSize        int64         `yaml:"fetchMaxSize"`
	JikanRatePerSecond  float64       `yaml:"jikanRatePerSecond"`
	AggregateMaxWorkers int           `yaml:"aggregateMaxWorkers"`

	// Providers（空の場合はそのプロバイダを無効化する）
	TVDBAPIKey          string `yaml:"tvdbApiKey"`
	TMDBReadAccessToken string `yaml:"tmdbReadAccessToken"`

	// Tasks
	MappingSourceURL    string        `yaml:"mappingSourceUrl"`
	MappingSyncInterval time.Duration `yaml:"mappingSyncInterval"`
	CachePurgeInterval  time.Duration `yaml:"cachePurgeInterval"`
	CachePurgeGraceDays int           `yaml:"cachePurgeGraceDays"`
	CacheWarmEnabled    bool          `yaml:"cacheWarmEnabled"`
	CacheWarmInterval   time.Duration `yaml:"cacheWarmInterval"`
	CacheWarmItemDelay  time.Duration `yaml:"cacheWarmItemDelay"`
}

// defaultConfig はデフォルト値を設定したConfigを返す。
func defaultConfig() *Config {
	return &Config{
		DBConnectAttempts:   5,
		ServerPort:          "8080",
		ServerWriteTimeout:  120 * time.Second,
		CORSAllowedOrigin:   "*",
		RateLimitGeneral:    120,
		LogLevel:            "info",
		HTTPTimeout:         30 * time.Second,
		FetchMaxAttempts:    10,
		FetchInitialDelay:   350 * time.Millisecond,
		FetchMaxSize:        67108864,
		JikanRatePerSecond:  3,
		AggregateMaxWorkers: 6,
		MappingSourceURL:    DefaultMappingSourceURL,
		MappingSyncInterval: 7 * 24 * time.Hour,
		CachePurgeInterval:  24 * time.Hour,
		CachePurgeGraceDays: 7,
		CacheWarmEnabled:    false,
		CacheWarmInterval:   24 * time.Hour,
		CacheWarmItemDelay:  2 * time.Second,
	}
}

// Load はYAMLファイル（METACHAN_CONFIGで指定された場合）と環境変数からConfigを読み込む。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := defaultConfig()

	// 1. YAMLファイル（任意）
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// 2. 環境変数による上書き
	cfg.applyEnvOverrides()

	// 3. 必須項目の検証
	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.DatabaseURL = getEnvString("DATABASE_URL", c.DatabaseURL)
	c.DBConnectAttempts = getEnvInt("DB_CONNECT_ATTEMPTS", c.DBConnectAttempts)

	c.ServerPort = getEnvString("SERVER_PORT", c.ServerPort)
	c.ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.ServerWriteTimeout)
	c.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", c.CORSAllowedOrigin)
	c.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", c.RateLimitGeneral)

	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)

	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.FetchMaxAttempts = getEnvInt("FETCH_MAX_ATTEMPTS", c.FetchMaxAttempts)
	c.FetchInitialDelay = getEnvDuration("FETCH_INITIAL_DELAY", c.FetchInitialDelay)
	c.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", c.FetchMaxSize)
	c.JikanRatePerSecond = getEnvFloat("JIKAN_RATE_PER_SECOND", c.JikanRatePerSecond)
	c.AggregateMaxWorkers = getEnvInt("AGGREGATE_MAX_WORKERS", c.AggregateMaxWorkers)

	c.TVDBAPIKey = getEnvString("TVDB_API_KEY", c.TVDBAPIKey)
	c.TMDBReadAccessToken = getEnvString("TMDB_READ_ACCESS_TOKEN", c.TMDBReadAccessToken)

	c.MappingSourceURL = getEnvString("MAPPING_SOURCE_URL", c.MappingSourceURL)
	c.MappingSyncInterval = getEnvDuration("MAPPING_SYNC_INTERVAL", c.MappingSyncInterval)
	c.CachePurgeInterval = getEnvDuration("CACHE_PURGE_INTERVAL", c.CachePurgeInterval)
	c.CachePurgeGraceDays = getEnvInt("CACHE_PURGE_GRACE_DAYS", c.CachePurgeGraceDays)
	c.CacheWarmEnabled = getEnvBool("CACHE_WARM_ENABLED", c.CacheWarmEnabled)
	c.CacheWarmInterval = getEnvDuration("CACHE_WARM_INTERVAL", c.CacheWarmInterval)
	c.CacheWarmItemDelay = getEnvDuration("CACHE_WARM_ITEM_DELAY", c.CacheWarmItemDelay)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
