package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	BucketOriginals string
	BucketGenerated string
	UseSSL          bool
	Region          string
}

type VisionConfig struct {
	BaseURL        string
	APIKey         string
	AnalyzeModel   string
	GenerateModel  string
	ReviewModel    string
	RequestTimeout time.Duration
}

type PipelineConfig struct {
	MaxRetries     int
	ReviewEnabled  bool
	TaskTTL        time.Duration
	MaxUploadBytes int64
	ChunkSize      int
}

type SecurityConfig struct {
	RequireToken    bool
	AccessTokenHash string
}

type ArchiveConfig struct {
	Enabled   bool
	Retention time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Redis            RedisConfig
	Postgres         PostgresConfig
	Storage          StorageConfig
	Vision           VisionConfig
	Pipeline         PipelineConfig
	Security         SecurityConfig
	Archive          ArchiveConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("STYLIZER")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Pipeline.MaxRetries < 1 {
		return nil, fmt.Errorf("pipeline.maxretries must be >= 1, got %d", cfg.Pipeline.MaxRetries)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "300s") // the push adapter holds the connection for a full pipeline run
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("storage.bucketoriginals", "stylizer-originals")
	v.SetDefault("storage.bucketgenerated", "stylizer-generated")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("vision.analyzemodel", "vision-describe-1")
	v.SetDefault("vision.generatemodel", "vision-stylize-1")
	v.SetDefault("vision.reviewmodel", "vision-describe-1")
	v.SetDefault("vision.requesttimeout", "120s")

	v.SetDefault("pipeline.maxretries", 3)
	v.SetDefault("pipeline.reviewenabled", true)
	v.SetDefault("pipeline.taskttl", "1h")
	v.SetDefault("pipeline.maxuploadbytes", 10<<20)
	v.SetDefault("pipeline.chunksize", 64<<10)

	v.SetDefault("security.requiretoken", false)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.retention", "720h")
}
