package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers understood by the bootstrap.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

const (
	defaultJWTSecret       = "dev_secret"
	defaultDocumentsSecret = "dev_documents_secret"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Store     StoreConfig
	Search    SearchConfig
	Documents DocumentsConfig
	Auth      AuthConfig
	Seed      SeedConfig
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

// DSN renders the connection string in URL form, as expected by golang-migrate.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// HTTPConfig bounds server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the employee record backend.
type StoreConfig struct {
	Driver string
}

// SearchConfig tunes pagination, caching and exports of employee searches.
type SearchConfig struct {
	DefaultLimit  int
	MaxLimit      int
	CacheEnabled  bool
	CacheTTL      time.Duration
	ExportMaxRows int
}

// DocumentsConfig controls identity document storage & validation.
type DocumentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MinFileSizeBytes int64
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	CleanupWorkers   int
	CleanupRetries   int
}

// UserCredential is a configured login with its bcrypt hash.
type UserCredential struct {
	Username     string
	PasswordHash string
	IsAdmin      bool
}

// AuthConfig holds the credential source and login handle generation limits.
type AuthConfig struct {
	Users                  []UserCredential
	LoginHandleMaxAttempts int
}

// SeedConfig toggles initial record loading.
type SeedConfig struct {
	Enabled bool
	File    string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 8*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.HTTP = HTTPConfig{
		ReadTimeout:     parseDuration(v.GetString("HTTP_READ_TIMEOUT"), 15*time.Second),
		WriteTimeout:    parseDuration(v.GetString("HTTP_WRITE_TIMEOUT"), 30*time.Second),
		ShutdownTimeout: parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 10*time.Second),
	}

	cfg.Store = StoreConfig{Driver: strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))}

	cfg.Search = SearchConfig{
		DefaultLimit:  v.GetInt("SEARCH_DEFAULT_LIMIT"),
		MaxLimit:      v.GetInt("SEARCH_MAX_LIMIT"),
		CacheEnabled:  v.GetBool("ENABLE_SEARCH_CACHE"),
		CacheTTL:      parseDuration(v.GetString("SEARCH_CACHE_TTL"), 2*time.Minute),
		ExportMaxRows: v.GetInt("EXPORT_MAX_ROWS"),
	}

	cfg.Documents = DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 15*time.Minute),
		MinFileSizeBytes: v.GetInt64("DOCUMENTS_MIN_FILE_SIZE"),
		MaxFileSizeBytes: v.GetInt64("DOCUMENTS_MAX_FILE_SIZE"),
		AllowedMIMEs:     splitAndTrim(v.GetString("DOCUMENTS_ALLOWED_MIME_TYPES")),
		CleanupWorkers:   v.GetInt("DOCUMENTS_CLEANUP_WORKERS"),
		CleanupRetries:   v.GetInt("DOCUMENTS_CLEANUP_RETRIES"),
	}

	users, err := parseUsers(v.GetString("AUTH_USERS"))
	if err != nil {
		return nil, err
	}
	cfg.Auth = AuthConfig{
		Users:                  users,
		LoginHandleMaxAttempts: v.GetInt("LOGIN_HANDLE_MAX_ATTEMPTS"),
	}

	seedDefault := cfg.Env != EnvProduction
	if v.IsSet("SEED_ENABLED") {
		seedDefault = v.GetBool("SEED_ENABLED")
	}
	cfg.Seed = SeedConfig{
		Enabled: seedDefault,
		File:    v.GetString("SEED_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Documents.MinFileSizeBytes < 0 || c.Documents.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("document size bounds must be positive")
	}
	if c.Documents.MinFileSizeBytes > c.Documents.MaxFileSizeBytes {
		return fmt.Errorf("DOCUMENTS_MIN_FILE_SIZE exceeds DOCUMENTS_MAX_FILE_SIZE")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("invalid search limits: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.CacheEnabled && c.Search.CacheTTL >= c.Documents.SignedURLTTL {
		return fmt.Errorf("SEARCH_CACHE_TTL (%s) must be shorter than DOCUMENTS_SIGNED_URL_TTL (%s)", c.Search.CacheTTL, c.Documents.SignedURLTTL)
	}
	if c.Env == EnvProduction {
		if c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Documents.SignedURLSecret == "" || c.Documents.SignedURLSecret == defaultDocumentsSecret {
			return fmt.Errorf("DOCUMENTS_SIGNED_URL_SECRET must be set in production")
		}
		if len(c.Auth.Users) == 0 {
			return fmt.Errorf("AUTH_USERS must be set in production")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "employee_records")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_EXPIRATION", "8h")
	v.SetDefault("JWT_ISSUER", "employee-records-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("STORE_DRIVER", StoreMemory)

	v.SetDefault("SEARCH_DEFAULT_LIMIT", 10)
	v.SetDefault("SEARCH_MAX_LIMIT", 100)
	v.SetDefault("ENABLE_SEARCH_CACHE", false)
	v.SetDefault("SEARCH_CACHE_TTL", "2m")
	v.SetDefault("EXPORT_MAX_ROWS", 5000)

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", defaultDocumentsSecret)
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "15m")
	v.SetDefault("DOCUMENTS_MIN_FILE_SIZE", 10*1024)
	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 1024*1024)
	v.SetDefault("DOCUMENTS_ALLOWED_MIME_TYPES", "application/pdf")
	v.SetDefault("DOCUMENTS_CLEANUP_WORKERS", 1)
	v.SetDefault("DOCUMENTS_CLEANUP_RETRIES", 3)

	v.SetDefault("AUTH_USERS", "")
	v.SetDefault("LOGIN_HANDLE_MAX_ATTEMPTS", 1000)
	v.SetDefault("SEED_FILE", "")
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

// parseUsers reads "name:hash[:admin]" entries separated by commas.
func parseUsers(raw string) ([]UserCredential, error) {
	entries := splitAndTrim(raw)
	if len(entries) == 0 {
		return nil, nil
	}
	users := make([]UserCredential, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("AUTH_USERS entry %q must be username:hash[:admin]", entry)
		}
		username := strings.TrimSpace(parts[0])
		hash := strings.TrimSpace(parts[1])
		if username == "" || hash == "" {
			return nil, fmt.Errorf("AUTH_USERS entry %q has an empty field", entry)
		}
		if _, dup := seen[username]; dup {
			return nil, fmt.Errorf("AUTH_USERS lists %q twice", username)
		}
		seen[username] = struct{}{}
		user := UserCredential{Username: username, PasswordHash: hash}
		if len(parts) == 3 {
			switch strings.ToLower(strings.TrimSpace(parts[2])) {
			case "admin":
				user.IsAdmin = true
			case "", "user":
			default:
				return nil, fmt.Errorf("AUTH_USERS entry %q has unknown role %q", entry, parts[2])
			}
		}
		users = append(users, user)
	}
	return users, nil
}
