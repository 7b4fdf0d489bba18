package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Import   ImportConfig
	Preview  PreviewConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the secret shared with the auth service that issues access tokens.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImportConfig controls roster ingestion: uploads, extraction and account defaults.
type ImportConfig struct {
	EmailDomain       string
	DefaultPassword   string
	MaxErrors         int
	UploadDir         string
	UploadTTL         time.Duration
	MaxFileSizeBytes  int64
	AllowedExtensions []string
	ExtractCommand    string
	ExtractTimeout    time.Duration
}

// PreviewConfig governs caching of parse-only previews.
type PreviewConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxFileSize := v.GetInt64("IMPORT_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	maxErrors := v.GetInt("IMPORT_MAX_ERRORS")
	if maxErrors <= 0 {
		maxErrors = 10
	}
	cfg.Import = ImportConfig{
		EmailDomain:       strings.TrimPrefix(strings.ToLower(v.GetString("IMPORT_EMAIL_DOMAIN")), "@"),
		DefaultPassword:   v.GetString("IMPORT_DEFAULT_PASSWORD"),
		MaxErrors:         maxErrors,
		UploadDir:         v.GetString("IMPORT_UPLOAD_DIR"),
		UploadTTL:         parseDuration(v.GetString("IMPORT_UPLOAD_TTL"), time.Hour),
		MaxFileSizeBytes:  maxFileSize,
		AllowedExtensions: splitAndTrim(strings.ToLower(v.GetString("IMPORT_ALLOWED_EXTENSIONS"))),
		ExtractCommand:    v.GetString("IMPORT_EXTRACT_COMMAND"),
		ExtractTimeout:    parseDuration(v.GetString("IMPORT_EXTRACT_TIMEOUT"), 30*time.Second),
	}

	cfg.Preview = PreviewConfig{
		CacheEnabled: v.GetBool("ENABLE_PREVIEW_CACHE"),
		CacheTTL:     parseDuration(v.GetString("PREVIEW_CACHE_TTL"), 10*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("IMPORT_EMAIL_DOMAIN", "college.edu")
	v.SetDefault("IMPORT_DEFAULT_PASSWORD", "Welcome@123")
	v.SetDefault("IMPORT_MAX_ERRORS", 10)
	v.SetDefault("IMPORT_UPLOAD_DIR", "./uploads")
	v.SetDefault("IMPORT_UPLOAD_TTL", "1h")
	v.SetDefault("IMPORT_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("IMPORT_ALLOWED_EXTENSIONS", ".txt,.csv,.html,.htm,.docx,.doc,.pdf")
	v.SetDefault("IMPORT_EXTRACT_COMMAND", "")
	v.SetDefault("IMPORT_EXTRACT_TIMEOUT", "30s")

	v.SetDefault("ENABLE_PREVIEW_CACHE", true)
	v.SetDefault("PREVIEW_CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
