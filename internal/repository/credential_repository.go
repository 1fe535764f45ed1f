package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/employee-records-api/internal/models"
)

// CredentialRepository holds the accounts permitted to sign in.
type CredentialRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewCredentialRepository builds a repository from users, rejecting duplicate usernames.
func NewCredentialRepository(users []models.User) (*CredentialRepository, error) {
	repo := &CredentialRepository{users: make(map[string]models.User, len(users))}
	for _, u := range users {
		if err := repo.Add(u); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Add registers a user.
func (r *CredentialRepository) Add(user models.User) error {
	key := normalizeUsername(user.Username)
	if key == "" || user.PasswordHash == "" {
		return fmt.Errorf("credential requires username and password hash")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return fmt.Errorf("credential %s: %w", user.Username, ErrDuplicateKey)
	}
	r.users[key] = user
	return nil
}

// FindByUsername returns the matching user or sql.ErrNoRows. Usernames compare case-insensitively.
func (r *CredentialRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[normalizeUsername(username)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

// Len returns the number of registered users.
func (r *CredentialRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
