package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Normalizer NormalizerConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

// StorageConfig holds the filesystem locations the service reads and writes.
type StorageConfig struct {
	DataDir   string
	CacheDir  string
	ModelPath string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	// Compression is "xz" or "none".
	Compression   string
	MemoryEntries int
	ResultTTLSec  int
	// UploadRetentionHours of 0 disables the scheduled upload sweep.
	UploadRetentionHours int
	SweepSchedule        string
}

type NormalizerConfig struct {
	DateThreshold float64
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configuration from an optional file and FLEETLENS_* environment
// variables. An empty path searches the default locations for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fleetlens")
	}

	v.SetEnvPrefix("FLEETLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Storage.DataDir == "" || c.Storage.CacheDir == "" {
		return fmt.Errorf("storage.dataDir and storage.cacheDir are required")
	}
	if c.Normalizer.DateThreshold <= 0 || c.Normalizer.DateThreshold >= 1 {
		return fmt.Errorf("normalizer.dateThreshold must be in (0, 1), got %v", c.Normalizer.DateThreshold)
	}
	switch c.Cache.Compression {
	case "xz", "none":
	default:
		return fmt.Errorf("cache.compression must be xz or none, got %q", c.Cache.Compression)
	}
	if c.Cache.UploadRetentionHours < 0 {
		return fmt.Errorf("cache.uploadRetentionHours must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 104857600)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("storage.dataDir", "./data")
	v.SetDefault("storage.cacheDir", "./cache")
	v.SetDefault("storage.modelPath", "./model/failure_model.json")

	v.SetDefault("sqlite.path", "./cache/fleetlens.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.compression", "xz")
	v.SetDefault("cache.memoryEntries", 8)
	v.SetDefault("cache.resultTTLSec", 600)
	v.SetDefault("cache.uploadRetentionHours", 0)
	v.SetDefault("cache.sweepSchedule", "@daily")

	v.SetDefault("normalizer.dateThreshold", 0.5)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
