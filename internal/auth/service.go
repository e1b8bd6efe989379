package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session tracks an issued refresh token until it expires or is rotated
type session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Service handles authentication for the single operator account.
// Refresh tokens are kept in memory, so a restart revokes all sessions.
type Service struct {
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	config          Config

	operatorID   string
	operatorHash string

	mu             sync.Mutex
	sessions       map[string]session // keyed by SHA-256 of the refresh token
	failedAttempts int
	lockedUntil    time.Time
}

// NewService creates a new authentication service
func NewService(config Config) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if config.MaxLoginAttempts == 0 {
		config.MaxLoginAttempts = 5
	}
	if config.LockoutDuration == 0 {
		config.LockoutDuration = 15 * time.Minute
	}
	if config.OperatorEmail == "" {
		return nil, fmt.Errorf("operator email is required")
	}

	s := &Service{
		jwtManager:      NewJWTManager(config.JWTSecret, config.AccessTokenDuration, config.RefreshTokenDuration),
		passwordManager: NewPasswordManager(DefaultBcryptCost, config.MinPasswordLength),
		config:          config,
		operatorID:      uuid.New().String(),
		sessions:        make(map[string]session),
	}

	// A hash provided directly (e.g. from Vault) wins over a plaintext password
	switch {
	case config.OperatorPasswordHash != "":
		s.operatorHash = config.OperatorPasswordHash
	case config.OperatorPassword != "":
		hash, err := s.passwordManager.HashPassword(config.OperatorPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to hash operator password: %w", err)
		}
		s.operatorHash = hash
	default:
		return nil, fmt.Errorf("operator password or password hash is required")
	}

	return s, nil
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Login authenticates the operator and issues a token pair
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	s.mu.Lock()
	if time.Now().Before(s.lockedUntil) {
		s.mu.Unlock()
		return nil, ErrRateLimited
	}
	s.mu.Unlock()

	if !strings.EqualFold(req.Email, s.config.OperatorEmail) ||
		!s.passwordManager.VerifyPassword(req.Password, s.operatorHash) {
		s.recordFailedLogin()
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	s.failedAttempts = 0
	s.lockedUntil = time.Time{}
	s.mu.Unlock()

	pair, err := s.issueTokenPair()
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		Email:        s.config.OperatorEmail,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// RefreshTokens exchanges a valid refresh token for a new token pair.
// The old refresh token is revoked, refresh tokens are single use.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	tokenHash := HashRefreshToken(refreshToken)

	s.mu.Lock()
	sess, ok := s.sessions[tokenHash]
	if ok {
		delete(s.sessions, tokenHash)
	}
	s.sweepExpiredLocked()
	s.mu.Unlock()

	if !ok {
		return nil, ErrSessionRevoked
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	pair, err := s.issueTokenPair()
	if err != nil {
		return nil, err
	}

	return &RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// Logout revokes a refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := HashRefreshToken(refreshToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tokenHash]; !ok {
		return ErrSessionRevoked
	}
	delete(s.sessions, tokenHash)
	return nil
}

// OperatorClaims returns the claims carried by operator access tokens
func (s *Service) OperatorClaims() UserClaims {
	return UserClaims{
		UserID:  s.operatorID,
		Email:   s.config.OperatorEmail,
		IsAdmin: true,
	}
}

// ActiveSessions returns the number of unexpired refresh tokens
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpiredLocked()
	return len(s.sessions)
}

func (s *Service) issueTokenPair() (*TokenPair, error) {
	pair, err := s.jwtManager.GenerateTokenPair(s.OperatorClaims())
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.mu.Lock()
	s.sessions[HashRefreshToken(pair.RefreshToken)] = session{
		UserID:    s.operatorID,
		Email:     s.config.OperatorEmail,
		ExpiresAt: time.Now().Add(s.jwtManager.GetRefreshTokenDuration()),
	}
	s.mu.Unlock()

	return pair, nil
}

func (s *Service) recordFailedLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failedAttempts++
	if s.failedAttempts >= s.config.MaxLoginAttempts {
		s.lockedUntil = time.Now().Add(s.config.LockoutDuration)
		s.failedAttempts = 0
	}
}

func (s *Service) sweepExpiredLocked() {
	now := time.Now()
	for hash, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, hash)
		}
	}
}
