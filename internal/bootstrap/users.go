package bootstrap

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/repository"
	"github.com/noah-isme/employee-records-api/pkg/config"
)

type demoUser struct {
	username string
	password string
	isAdmin  bool
}

var demoUsers = []demoUser{
	{username: "admin", password: "admin123", isAdmin: true},
	{username: "user", password: "user123"},
}

// loadCredentials builds the credential store from AUTH_USERS. Outside
// production an empty list falls back to the demo accounts.
func loadCredentials(cfg *config.Config, logger *zap.Logger) (*repository.CredentialRepository, error) {
	users := make([]models.User, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users = append(users, models.User{Username: u.Username, PasswordHash: u.PasswordHash, IsAdmin: u.IsAdmin})
	}

	if len(users) == 0 {
		if cfg.Env == config.EnvProduction {
			return nil, fmt.Errorf("no credentials configured")
		}
		for _, demo := range demoUsers {
			hash, err := bcrypt.GenerateFromPassword([]byte(demo.password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash demo credential %s: %w", demo.username, err)
			}
			users = append(users, models.User{Username: demo.username, PasswordHash: string(hash), IsAdmin: demo.isAdmin})
		}
		logger.Warn("AUTH_USERS is empty, demo accounts admin and user are enabled")
	}

	repo, err := repository.NewCredentialRepository(users)
	if err != nil {
		return nil, fmt.Errorf("init credentials: %w", err)
	}
	return repo, nil
}
