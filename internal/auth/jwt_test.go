package auth

import (
	"errors"
	"testing"
	"time"
)

func testClaims() UserClaims {
	return UserClaims{
		UserID:  "00000000-0000-0000-0000-000000000001",
		Email:   "operator@local",
		IsAdmin: true,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret-at-least-32-characters!!", 15*time.Minute, 7*24*time.Hour)

	token, err := manager.GenerateAccessToken(testClaims())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}

	if claims.UserID != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("Expected user ID to survive round trip, got %s", claims.UserID)
	}
	if claims.Email != "operator@local" {
		t.Errorf("Expected email operator@local, got %s", claims.Email)
	}
	if !claims.IsAdmin {
		t.Error("Expected IsAdmin to survive round trip")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("issuer-secret-at-least-32-chars!!!!!", 15*time.Minute, time.Hour)
	verifier := NewJWTManager("different-secret-at-least-32-chars!!", 15*time.Minute, time.Hour)

	token, err := issuer.GenerateAccessToken(testClaims())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := verifier.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret-at-least-32-characters!!", -time.Minute, time.Hour)

	token, err := manager.GenerateAccessToken(testClaims())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := manager.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := NewJWTManager("test-secret-at-least-32-characters!!", 15*time.Minute, time.Hour)

	if _, err := manager.ValidateAccessToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage input, got %v", err)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	manager := NewJWTManager("test-secret-at-least-32-characters!!", 15*time.Minute, time.Hour)

	first, err := manager.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	second, err := manager.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}

	if first == second {
		t.Error("Expected distinct refresh tokens")
	}
}

func TestGenerateTokenPair(t *testing.T) {
	manager := NewJWTManager("test-secret-at-least-32-characters!!", 15*time.Minute, time.Hour)

	pair, err := manager.GenerateTokenPair(testClaims())
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}

	if pair.TokenType != "Bearer" {
		t.Errorf("Expected token type Bearer, got %s", pair.TokenType)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("Expected ExpiresIn 900, got %d", pair.ExpiresIn)
	}
	if pair.RefreshToken == "" {
		t.Error("Expected a refresh token")
	}
	if _, err := manager.ValidateAccessToken(pair.AccessToken); err != nil {
		t.Errorf("Expected access token from pair to validate, got %v", err)
	}
}
