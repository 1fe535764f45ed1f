package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/employee-records-api/internal/models"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
	"github.com/noah-isme/employee-records-api/pkg/logger"
)

type credentialRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for token issuance.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService authenticates principals and manages session tokens.
type AuthService struct {
	repo      credentialRepository
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	denylist  *tokenDenylist
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService constructs an AuthService instance. audit and metrics may be nil.
func NewAuthService(repo credentialRepository, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 8 * time.Hour
	}
	return &AuthService{
		repo:      repo,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		denylist:  newTokenDenylist(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies credentials and issues an access token. Every credential
// failure yields the same INVALID_CREDENTIALS error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	user, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credentials")
	}

	hash := s.dummy()
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	compareErr := bcrypt.CompareHashAndPassword(hash, []byte(req.Password))
	if user == nil || compareErr != nil {
		s.metrics.RecordLogin(false)
		s.record(ctx, &models.AuditLog{
			Actor:     req.Username,
			Action:    models.AuditActionLoginFailed,
			Resource:  "auth",
			IPAddress: req.IP,
			UserAgent: req.UserAgent,
		})
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	issuedAt := s.now()
	token, err := s.generateAccessToken(user, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	principal := models.Principal{Username: user.Username, IsAdmin: user.IsAdmin, Role: models.RoleFor(user.IsAdmin)}
	s.metrics.RecordLogin(true)
	s.record(ctx, &models.AuditLog{
		Actor:      user.Username,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: user.Username,
		NewValues:  mustJSON(map[string]string{"role": string(principal.Role)}),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})
	logger.WithContext(ctx, s.logger).Info("login succeeded", zap.String("username", user.Username))

	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		Principal:   principal,
	}, nil
}

// ValidateToken parses an access token and rejects revoked ones.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.ID == "" || s.denylist.Revoked(claims.ID, s.now()) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has been revoked")
	}
	return claims, nil
}

// Logout revokes the token identified by claims until it would have expired.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims, meta models.LoginRequest) error {
	if claims == nil || claims.ID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing session")
	}
	expiresAt := s.now().Add(s.config.AccessTokenExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.denylist.Revoke(claims.ID, expiresAt, s.now())
	s.record(ctx, &models.AuditLog{
		Actor:      claims.Username,
		Action:     models.AuditActionLogout,
		Resource:   "auth",
		ResourceID: claims.Username,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// Me returns the principal carried by validated claims.
func (s *AuthService) Me(claims *models.JWTClaims) (*models.Principal, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing session")
	}
	principal := claims.Principal()
	return &principal, nil
}

func (s *AuthService) generateAccessToken(user *models.User, issuedAt time.Time) (string, error) {
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Role:     models.RoleFor(user.IsAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

// dummy returns a hash compared against when the username is unknown so both paths cost one bcrypt.
func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("failed to build dummy hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) record(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return raw
}

// tokenDenylist remembers revoked token ids until their natural expiry.
type tokenDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newTokenDenylist() *tokenDenylist {
	return &tokenDenylist{entries: make(map[string]time.Time)}
}

func (d *tokenDenylist) Revoke(jti string, expiresAt, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(now)
	d.entries[jti] = expiresAt
}

func (d *tokenDenylist) Revoked(jti string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(now)
	_, ok := d.entries[jti]
	return ok
}

func (d *tokenDenylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *tokenDenylist) prune(now time.Time) {
	for jti, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, jti)
		}
	}
}
