package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsers(t *testing.T) {
	users, err := parseUsers("admin:$2a$10$abc:admin, user:$2a$10$def")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, UserCredential{Username: "admin", PasswordHash: "$2a$10$abc", IsAdmin: true}, users[0])
	assert.Equal(t, UserCredential{Username: "user", PasswordHash: "$2a$10$def"}, users[1])

	users, err = parseUsers("")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestParseUsersRejectsMalformedEntries(t *testing.T) {
	cases := []string{
		"admin",
		"admin:",
		"admin:hash:root",
		"admin:hash,admin:other",
		"a:b:c:d",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			_, err := parseUsers(raw)
			assert.Error(t, err)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", EnvDevelopment)
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SEED_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, int64(10*1024), cfg.Documents.MinFileSizeBytes)
	assert.Equal(t, int64(1024*1024), cfg.Documents.MaxFileSizeBytes)
	assert.Equal(t, []string{"application/pdf"}, cfg.Documents.AllowedMIMEs)
	assert.Equal(t, 1000, cfg.Auth.LoginHandleMaxAttempts)
	assert.Equal(t, 8*time.Hour, cfg.JWT.Expiration)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:       EnvDevelopment,
			Store:     StoreConfig{Driver: StoreMemory},
			Search:    SearchConfig{DefaultLimit: 10, MaxLimit: 100},
			Documents: DocumentsConfig{MinFileSizeBytes: 10, MaxFileSizeBytes: 20, SignedURLSecret: defaultDocumentsSecret},
			JWT:       JWTConfig{Secret: defaultJWTSecret},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Store.Driver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Documents.MinFileSizeBytes = 30
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Search.MaxLimit = 5
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Search.CacheEnabled = true
	cfg.Search.CacheTTL = 2 * time.Minute
	cfg.Documents.SignedURLTTL = 15 * time.Minute
	assert.NoError(t, cfg.Validate())
	cfg.Search.CacheTTL = 15 * time.Minute
	assert.Error(t, cfg.Validate())
	cfg.Search.CacheEnabled = false
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Env = EnvProduction
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "prod-secret"
	cfg.Documents.SignedURLSecret = "prod-documents"
	assert.Error(t, cfg.Validate())

	cfg.Auth.Users = []UserCredential{{Username: "admin", PasswordHash: "hash", IsAdmin: true}}
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "pw", Name: "employees", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:pw@db:5432/employees?sslmode=disable", cfg.DSN())
}
