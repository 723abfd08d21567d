package utils

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret-key-for-testing"

func TestGenerateToken(t *testing.T) {
	signer := NewTokenSigner(testSecret, 24)

	token, err := signer.GenerateToken("65f1c0ffee0000000000abcd", "dev@example.com")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if token == "" {
		t.Error("GenerateToken() returned empty token")
	}

	if len(token) < 50 {
		t.Errorf("token seems too short: %d chars", len(token))
	}
}

func TestGenerateToken_DifferentTokens(t *testing.T) {
	signer := NewTokenSigner(testSecret, 24)

	token1, _ := signer.GenerateToken("1", "one@example.com")
	token2, _ := signer.GenerateToken("2", "two@example.com")

	if token1 == token2 {
		t.Error("different users should produce different tokens")
	}
}

func TestParseToken(t *testing.T) {
	signer := NewTokenSigner(testSecret, 24)
	token, _ := signer.GenerateToken("65f1c0ffee0000000000abcd", "dev@example.com")

	claims, err := signer.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.UserID != "65f1c0ffee0000000000abcd" {
		t.Errorf("UserID = %q", claims.UserID)
	}
	if claims.Email != "dev@example.com" {
		t.Errorf("Email = %q, expected %q", claims.Email, "dev@example.com")
	}
}

func TestParseToken_InvalidToken(t *testing.T) {
	signer := NewTokenSigner(testSecret, 24)

	invalidTokens := []string{
		"",
		"invalid",
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, token := range invalidTokens {
		_, err := signer.ParseToken(token)
		if !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("ParseToken(%q) error = %v, expected ErrTokenInvalid", token, err)
		}
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _ := NewTokenSigner("original-secret", 24).GenerateToken("1", "a@example.com")

	_, err := NewTokenSigner("different-secret", 24).ParseToken(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken should fail with ErrTokenInvalid, got %v", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	signer := &TokenSigner{secret: []byte(testSecret), ttl: -time.Hour}
	token, err := signer.GenerateToken("1", "a@example.com")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	_, err = signer.ParseToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token error = %v, expected ErrTokenExpired", err)
	}
}

func TestGenerateToken_Expiration(t *testing.T) {
	signer := NewTokenSigner(testSecret, 1)
	token, _ := signer.GenerateToken("1", "a@example.com")
	claims, _ := signer.ParseToken(token)

	expiresAt := claims.ExpiresAt.Time
	now := time.Now()

	if expiresAt.Before(now) {
		t.Error("token should not be expired immediately")
	}

	expectedExpiry := now.Add(1 * time.Hour)
	diff := expiresAt.Sub(expectedExpiry)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiration time is off by more than 1 minute: %v", diff)
	}
}

func TestNewTokenSigner_DefaultTTL(t *testing.T) {
	signer := NewTokenSigner(testSecret, 0)
	if signer.TTL() != 24*time.Hour {
		t.Errorf("TTL() = %v, expected 24h", signer.TTL())
	}
}
