package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	JWT      JWTConfig
	S3       S3Config
	Log      LogConfig
	Auth     AuthConfig
	Pipeline PipelineConfig
	Datalab  DatalabConfig
	Azure    AzureConfig
	Gemini   GeminiConfig
	Export   ExportConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// JWTConfig holds JWT signing and expiry settings.
type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer            string        `mapstructure:"issuer"`
}

// AuthConfig holds the single reviewer account. PasswordHash is a bcrypt hash;
// plain passwords never appear in configuration.
type AuthConfig struct {
	ReviewerUsername     string `mapstructure:"reviewer_username"`
	ReviewerPasswordHash string `mapstructure:"reviewer_password_hash"`
}

// S3Config holds object storage settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig holds the two-tier admission settings for one provider.
type RateLimitConfig struct {
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
}

// PipelineConfig holds orchestrator and comparator settings.
type PipelineConfig struct {
	// BaselineProvider names the provider whose output becomes validated_output
	// on auto-validation.
	BaselineProvider   string  `mapstructure:"baseline_provider"`
	AutoValidThreshold float64 `mapstructure:"auto_valid_threshold"`
	FuzzyThreshold     float64 `mapstructure:"fuzzy_threshold"`
	FuzzyMinLen        int     `mapstructure:"fuzzy_min_len"`
	MaxConcurrentDocs  int     `mapstructure:"max_concurrent_docs"`
	ClaimBatchSize     int     `mapstructure:"claim_batch_size"`
}

// DatalabConfig holds submit/poll provider settings.
type DatalabConfig struct {
	APIURL           string        `mapstructure:"api_url"`
	APIKey           string        `mapstructure:"api_key"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxPolls         int           `mapstructure:"max_polls"`
	TimeoutSecs      int           `mapstructure:"timeout_secs"`
	RateLimitRetries int           `mapstructure:"rate_limit_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	RateLimit        RateLimitConfig
}

// AzureConfig holds the one-shot OCR provider settings.
type AzureConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	APIVersion       string        `mapstructure:"api_version"`
	TimeoutSecs      int           `mapstructure:"timeout_secs"`
	TransientRetries int           `mapstructure:"transient_retries"`
	RateLimitRetries int           `mapstructure:"rate_limit_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxPolls         int           `mapstructure:"max_polls"`
	RateLimit        RateLimitConfig
}

// GeminiConfig holds the one-shot structuring provider settings.
type GeminiConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	TimeoutSecs      int           `mapstructure:"timeout_secs"`
	InvalidRetries   int           `mapstructure:"invalid_retries"`
	RateLimitRetries int           `mapstructure:"rate_limit_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	RateLimit        RateLimitConfig
}

// ExportConfig holds dataset export settings.
type ExportConfig struct {
	TrainSplitRatio float64 `mapstructure:"train_split_ratio"`
	OutputDir       string  `mapstructure:"output_dir"`
	// OCRSource picks which provider's raw OCR becomes the Alpaca input:
	// "azure" or "datalab".
	OCRSource string `mapstructure:"ocr_source"`
	SplitSeed int64  `mapstructure:"split_seed"`
}

// Load reads configuration from environment variables with the DDTCORPUS_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DDTCORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "ddtcorpus")
	v.SetDefault("db.password", "ddtcorpus_secret")
	v.SetDefault("db.name", "ddtcorpus_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// JWT defaults
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", "12h")
	v.SetDefault("jwt.issuer", "ddtcorpus")

	// Auth defaults
	v.SetDefault("auth.reviewer_username", "reviewer")
	v.SetDefault("auth.reviewer_password_hash", "")

	// S3 defaults
	v.SetDefault("s3.region", "eu-south-1")
	v.SetDefault("s3.bucket", "ddtcorpus-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 20)
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Pipeline defaults
	v.SetDefault("pipeline.baseline_provider", "datalab")
	v.SetDefault("pipeline.auto_valid_threshold", 0.95)
	v.SetDefault("pipeline.fuzzy_threshold", 0.85)
	v.SetDefault("pipeline.fuzzy_min_len", 20)
	v.SetDefault("pipeline.max_concurrent_docs", 2)
	v.SetDefault("pipeline.claim_batch_size", 10)

	// Datalab defaults (10 req/min, 2 concurrent, 5s polls for 10 minutes)
	v.SetDefault("datalab.api_url", "https://www.datalab.to/api/v1/marker")
	v.SetDefault("datalab.api_key", "")
	v.SetDefault("datalab.poll_interval", "5s")
	v.SetDefault("datalab.max_polls", 120)
	v.SetDefault("datalab.timeout_secs", 120)
	v.SetDefault("datalab.rate_limit_retries", 3)
	v.SetDefault("datalab.backoff_base", "2s")
	v.SetDefault("datalab.rate_limit.requests_per_window", 10)
	v.SetDefault("datalab.rate_limit.window", "1m")
	v.SetDefault("datalab.rate_limit.max_concurrent", 2)

	// Azure defaults (layout model, 2s polls for 2 minutes)
	v.SetDefault("azure.endpoint", "")
	v.SetDefault("azure.api_key", "")
	v.SetDefault("azure.model", "prebuilt-layout")
	v.SetDefault("azure.api_version", "2024-11-30")
	v.SetDefault("azure.timeout_secs", 120)
	v.SetDefault("azure.transient_retries", 3)
	v.SetDefault("azure.rate_limit_retries", 3)
	v.SetDefault("azure.backoff_base", "5s")
	v.SetDefault("azure.poll_interval", "2s")
	v.SetDefault("azure.max_polls", 60)
	v.SetDefault("azure.rate_limit.requests_per_window", 60)
	v.SetDefault("azure.rate_limit.window", "1m")
	v.SetDefault("azure.rate_limit.max_concurrent", 2)

	// Gemini defaults (10 req/min, 2 concurrent)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout_secs", 60)
	v.SetDefault("gemini.invalid_retries", 2)
	v.SetDefault("gemini.rate_limit_retries", 3)
	v.SetDefault("gemini.backoff_base", "2s")
	v.SetDefault("gemini.rate_limit.requests_per_window", 10)
	v.SetDefault("gemini.rate_limit.window", "1m")
	v.SetDefault("gemini.rate_limit.max_concurrent", 2)

	// Export defaults
	v.SetDefault("export.train_split_ratio", 0.93)
	v.SetDefault("export.output_dir", "exports")
	v.SetDefault("export.ocr_source", "azure")
	v.SetDefault("export.split_seed", 42)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                 "DDTCORPUS_SERVER_PORT",
		"server.read_timeout":         "DDTCORPUS_SERVER_READ_TIMEOUT",
		"server.write_timeout":        "DDTCORPUS_SERVER_WRITE_TIMEOUT",
		"server.environment":          "DDTCORPUS_SERVER_ENVIRONMENT",
		"db.host":                     "DDTCORPUS_DB_HOST",
		"db.port":                     "DDTCORPUS_DB_PORT",
		"db.user":                     "DDTCORPUS_DB_USER",
		"db.password":                 "DDTCORPUS_DB_PASSWORD",
		"db.name":                     "DDTCORPUS_DB_NAME",
		"db.sslmode":                  "DDTCORPUS_DB_SSLMODE",
		"db.max_open":                 "DDTCORPUS_DB_MAX_OPEN",
		"db.max_idle":                 "DDTCORPUS_DB_MAX_IDLE",
		"jwt.secret":                  "DDTCORPUS_JWT_SECRET",
		"jwt.access_expiry":           "DDTCORPUS_JWT_ACCESS_EXPIRY",
		"jwt.issuer":                  "DDTCORPUS_JWT_ISSUER",
		"auth.reviewer_username":      "DDTCORPUS_AUTH_REVIEWER_USERNAME",
		"auth.reviewer_password_hash": "DDTCORPUS_AUTH_REVIEWER_PASSWORD_HASH",
		"s3.region":                   "DDTCORPUS_S3_REGION",
		"s3.bucket":                   "DDTCORPUS_S3_BUCKET",
		"s3.endpoint":                 "DDTCORPUS_S3_ENDPOINT",
		"s3.access_key":               "DDTCORPUS_S3_ACCESS_KEY",
		"s3.secret_key":               "DDTCORPUS_S3_SECRET_KEY",
		"s3.max_file_size_mb":         "DDTCORPUS_S3_MAX_FILE_SIZE_MB",
		"s3.presign_expiry":           "DDTCORPUS_S3_PRESIGN_EXPIRY",
		"log.level":                   "DDTCORPUS_LOG_LEVEL",
		"log.format":                  "DDTCORPUS_LOG_FORMAT",
		"cors.allowed_origins":        "DDTCORPUS_CORS_ALLOWED_ORIGINS",
		"pipeline.baseline_provider":  "DDTCORPUS_PIPELINE_BASELINE_PROVIDER",
		"pipeline.auto_valid_threshold": "DDTCORPUS_PIPELINE_AUTO_VALID_THRESHOLD",
		"pipeline.fuzzy_threshold":      "DDTCORPUS_PIPELINE_FUZZY_THRESHOLD",
		"pipeline.fuzzy_min_len":        "DDTCORPUS_PIPELINE_FUZZY_MIN_LEN",
		"pipeline.max_concurrent_docs":  "DDTCORPUS_PIPELINE_MAX_CONCURRENT_DOCS",
		"pipeline.claim_batch_size":     "DDTCORPUS_PIPELINE_CLAIM_BATCH_SIZE",
		"datalab.api_url":               "DDTCORPUS_DATALAB_API_URL",
		"datalab.api_key":               "DDTCORPUS_DATALAB_API_KEY",
		"datalab.poll_interval":         "DDTCORPUS_DATALAB_POLL_INTERVAL",
		"datalab.max_polls":             "DDTCORPUS_DATALAB_MAX_POLLS",
		"datalab.timeout_secs":          "DDTCORPUS_DATALAB_TIMEOUT_SECS",
		"datalab.rate_limit_retries":    "DDTCORPUS_DATALAB_RATE_LIMIT_RETRIES",
		"datalab.backoff_base":          "DDTCORPUS_DATALAB_BACKOFF_BASE",
		"datalab.rate_limit.requests_per_window": "DDTCORPUS_DATALAB_RATE_LIMIT_REQUESTS_PER_WINDOW",
		"datalab.rate_limit.window":              "DDTCORPUS_DATALAB_RATE_LIMIT_WINDOW",
		"datalab.rate_limit.max_concurrent":      "DDTCORPUS_DATALAB_RATE_LIMIT_MAX_CONCURRENT",
		"azure.endpoint":                         "DDTCORPUS_AZURE_ENDPOINT",
		"azure.api_key":                          "DDTCORPUS_AZURE_API_KEY",
		"azure.model":                            "DDTCORPUS_AZURE_MODEL",
		"azure.api_version":                      "DDTCORPUS_AZURE_API_VERSION",
		"azure.timeout_secs":                     "DDTCORPUS_AZURE_TIMEOUT_SECS",
		"azure.transient_retries":                "DDTCORPUS_AZURE_TRANSIENT_RETRIES",
		"azure.rate_limit_retries":               "DDTCORPUS_AZURE_RATE_LIMIT_RETRIES",
		"azure.backoff_base":                     "DDTCORPUS_AZURE_BACKOFF_BASE",
		"azure.poll_interval":                    "DDTCORPUS_AZURE_POLL_INTERVAL",
		"azure.max_polls":                        "DDTCORPUS_AZURE_MAX_POLLS",
		"azure.rate_limit.requests_per_window":   "DDTCORPUS_AZURE_RATE_LIMIT_REQUESTS_PER_WINDOW",
		"azure.rate_limit.window":                "DDTCORPUS_AZURE_RATE_LIMIT_WINDOW",
		"azure.rate_limit.max_concurrent":        "DDTCORPUS_AZURE_RATE_LIMIT_MAX_CONCURRENT",
		"gemini.api_key":                         "DDTCORPUS_GEMINI_API_KEY",
		"gemini.model":                           "DDTCORPUS_GEMINI_MODEL",
		"gemini.timeout_secs":                    "DDTCORPUS_GEMINI_TIMEOUT_SECS",
		"gemini.invalid_retries":                 "DDTCORPUS_GEMINI_INVALID_RETRIES",
		"gemini.rate_limit_retries":              "DDTCORPUS_GEMINI_RATE_LIMIT_RETRIES",
		"gemini.backoff_base":                    "DDTCORPUS_GEMINI_BACKOFF_BASE",
		"gemini.rate_limit.requests_per_window":  "DDTCORPUS_GEMINI_RATE_LIMIT_REQUESTS_PER_WINDOW",
		"gemini.rate_limit.window":               "DDTCORPUS_GEMINI_RATE_LIMIT_WINDOW",
		"gemini.rate_limit.max_concurrent":       "DDTCORPUS_GEMINI_RATE_LIMIT_MAX_CONCURRENT",
		"export.train_split_ratio":               "DDTCORPUS_EXPORT_TRAIN_SPLIT_RATIO",
		"export.output_dir":                      "DDTCORPUS_EXPORT_OUTPUT_DIR",
		"export.ocr_source":                      "DDTCORPUS_EXPORT_OCR_SOURCE",
		"export.split_seed":                      "DDTCORPUS_EXPORT_SPLIT_SEED",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if DDTCORPUS_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DDTCORPUS_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.JWT = JWTConfig{
		Secret:            v.GetString("jwt.secret"),
		AccessTokenExpiry: v.GetDuration("jwt.access_expiry"),
		Issuer:            v.GetString("jwt.issuer"),
	}
	cfg.Auth = AuthConfig{
		ReviewerUsername:     v.GetString("auth.reviewer_username"),
		ReviewerPasswordHash: v.GetString("auth.reviewer_password_hash"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}
	cfg.Pipeline = PipelineConfig{
		BaselineProvider:   v.GetString("pipeline.baseline_provider"),
		AutoValidThreshold: v.GetFloat64("pipeline.auto_valid_threshold"),
		FuzzyThreshold:     v.GetFloat64("pipeline.fuzzy_threshold"),
		FuzzyMinLen:        v.GetInt("pipeline.fuzzy_min_len"),
		MaxConcurrentDocs:  v.GetInt("pipeline.max_concurrent_docs"),
		ClaimBatchSize:     v.GetInt("pipeline.claim_batch_size"),
	}
	cfg.Datalab = DatalabConfig{
		APIURL:           v.GetString("datalab.api_url"),
		APIKey:           v.GetString("datalab.api_key"),
		PollInterval:     v.GetDuration("datalab.poll_interval"),
		MaxPolls:         v.GetInt("datalab.max_polls"),
		TimeoutSecs:      v.GetInt("datalab.timeout_secs"),
		RateLimitRetries: v.GetInt("datalab.rate_limit_retries"),
		BackoffBase:      v.GetDuration("datalab.backoff_base"),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: v.GetInt("datalab.rate_limit.requests_per_window"),
			Window:            v.GetDuration("datalab.rate_limit.window"),
			MaxConcurrent:     v.GetInt("datalab.rate_limit.max_concurrent"),
		},
	}
	cfg.Azure = AzureConfig{
		Endpoint:         v.GetString("azure.endpoint"),
		APIKey:           v.GetString("azure.api_key"),
		Model:            v.GetString("azure.model"),
		APIVersion:       v.GetString("azure.api_version"),
		TimeoutSecs:      v.GetInt("azure.timeout_secs"),
		TransientRetries: v.GetInt("azure.transient_retries"),
		RateLimitRetries: v.GetInt("azure.rate_limit_retries"),
		BackoffBase:      v.GetDuration("azure.backoff_base"),
		PollInterval:     v.GetDuration("azure.poll_interval"),
		MaxPolls:         v.GetInt("azure.max_polls"),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: v.GetInt("azure.rate_limit.requests_per_window"),
			Window:            v.GetDuration("azure.rate_limit.window"),
			MaxConcurrent:     v.GetInt("azure.rate_limit.max_concurrent"),
		},
	}
	cfg.Gemini = GeminiConfig{
		APIKey:           v.GetString("gemini.api_key"),
		Model:            v.GetString("gemini.model"),
		TimeoutSecs:      v.GetInt("gemini.timeout_secs"),
		InvalidRetries:   v.GetInt("gemini.invalid_retries"),
		RateLimitRetries: v.GetInt("gemini.rate_limit_retries"),
		BackoffBase:      v.GetDuration("gemini.backoff_base"),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: v.GetInt("gemini.rate_limit.requests_per_window"),
			Window:            v.GetDuration("gemini.rate_limit.window"),
			MaxConcurrent:     v.GetInt("gemini.rate_limit.max_concurrent"),
		},
	}
	cfg.Export = ExportConfig{
		TrainSplitRatio: v.GetFloat64("export.train_split_ratio"),
		OutputDir:       v.GetString("export.output_dir"),
		OCRSource:       v.GetString("export.ocr_source"),
		SplitSeed:       v.GetInt64("export.split_seed"),
	}

	if cfg.Server.Environment == "production" && cfg.JWT.Secret == "change-me-in-production" {
		return nil, fmt.Errorf("config.Load: jwt.secret must be set in production")
	}

	return cfg, nil
}
