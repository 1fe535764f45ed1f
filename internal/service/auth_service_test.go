package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/employee-records-api/internal/models"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
)

type mockCredentialRepo struct {
	users map[string]*models.User
	err   error
}

func (m *mockCredentialRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type mockAuditLogger struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (m *mockAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockAuditLogger) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

func newTestAuthService(t *testing.T) (*AuthService, *mockAuditLogger, *MetricsService) {
	t.Helper()
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	userHash, err := bcrypt.GenerateFromPassword([]byte("user123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockCredentialRepo{users: map[string]*models.User{
		"admin": {Username: "admin", PasswordHash: string(adminHash), IsAdmin: true},
		"user":  {Username: "user", PasswordHash: string(userHash)},
	}}
	audit := &mockAuditLogger{}
	metrics := NewMetricsService()
	svc := NewAuthService(repo, audit, metrics, NewValidator(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "employee-records-api",
	})
	return svc, audit, metrics
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, audit, metrics := newTestAuthService(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.Principal{Username: "admin", IsAdmin: true, Role: models.RoleAdmin}, res.Principal)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.NotEmpty(t, claims.ID)

	assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())
	assert.Equal(t, uint64(1), metrics.Snapshot().LoginSuccesses)
}

func TestAuthServiceLoginNonAdmin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "user123"})
	require.NoError(t, err)
	assert.False(t, res.Principal.IsAdmin)
	assert.Equal(t, models.RoleUser, res.Principal.Role)
}

func TestAuthServiceLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, audit, metrics := newTestAuthService(t)

	_, wrongPassword := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "nope"})
	_, unknownUser := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "nope"})
	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)

	a := appErrors.FromError(wrongPassword)
	b := appErrors.FromError(unknownUser)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, a.Code)
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, a.Status, b.Status)

	assert.Equal(t, []string{models.AuditActionLoginFailed, models.AuditActionLoginFailed}, audit.actions())
	assert.Equal(t, uint64(2), metrics.Snapshot().LoginFailures)
}

func TestAuthServiceLoginValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "", Password: "x"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "username is required", appErr.Message)
}

func TestAuthServiceLoginRepositoryError(t *testing.T) {
	svc := NewAuthService(&mockCredentialRepo{err: errors.New("db down")}, nil, nil, nil, nil, AuthConfig{AccessTokenSecret: "secret"})
	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "admin123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutRevokesToken(t *testing.T) {
	svc, audit, _ := newTestAuthService(t)
	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "user123"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), claims, models.LoginRequest{}))
	_, err = svc.ValidateToken(res.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Contains(t, audit.actions(), models.AuditActionLogout)

	assert.Error(t, svc.Logout(context.Background(), nil, models.LoginRequest{}))
}

func TestAuthServiceValidateTokenRejectsForeignSignature(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	claims := &models.JWTClaims{
		Username: "admin",
		IsAdmin:  true,
		Role:     models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "abc",
			Issuer:    "employee-records-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsExpired(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "user123"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(res.AccessToken)
	assert.Error(t, err)
}

func TestAuthServiceMe(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	principal, err := svc.Me(&models.JWTClaims{Username: "user", Role: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "user", principal.Username)

	_, err = svc.Me(nil)
	assert.Error(t, err)
}

func TestTokenDenylistPrunesExpired(t *testing.T) {
	d := newTokenDenylist()
	now := time.Now()
	d.Revoke("a", now.Add(time.Minute), now)
	d.Revoke("b", now.Add(time.Hour), now)
	assert.True(t, d.Revoked("a", now))
	assert.False(t, d.Revoked("a", now.Add(2*time.Minute)))
	assert.Equal(t, 1, d.Len())
}
